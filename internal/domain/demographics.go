package domain

// Demographics is the participant record filled in next to the document.
// Nil means the field was left empty.
type Demographics struct {
	AgeYears             *int
	AgeMonths            *int
	BirthDate            *string
	Sex                  *string
	MomEducation         *int
	SiblingPosition      *int
	Residence            *string
	Education            *string
	DevelopmentTreatment *string
	SpecialEducation     *string
}

// DemographicFieldCount is the number of fields the completion percentage is
// computed over. Age counts once for years and months together.
const DemographicFieldCount = 9
