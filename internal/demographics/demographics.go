// Package demographics turns the participant form into the records stored
// next to exported annotations.
package demographics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/lewtec/pagetagger/internal/domain"
)

// Source yields the demographics to attach to an export.
type Source interface {
	Demographics(ctx context.Context) (domain.Demographics, error)
}

// Keys lists the flat keys every Source understands.
var Keys = []string{
	"ageYears", "ageMonths", "birthDate", "sex", "momEducation",
	"siblingPosition", "residence", "education", "developmentTreatment",
	"specialEducation",
}

// MapSource reads demographics from flat form values.
type MapSource map[string]string

func (m MapSource) Demographics(context.Context) (domain.Demographics, error) {
	return Parse(m), nil
}

// Parse builds demographics from flat values. Numeric fields are read the
// lenient way; empty or unparsable values are left out.
func Parse(values map[string]string) domain.Demographics {
	return domain.Demographics{
		AgeYears:             parseInt(values["ageYears"]),
		AgeMonths:            parseInt(values["ageMonths"]),
		BirthDate:            parseString(values["birthDate"]),
		Sex:                  parseString(values["sex"]),
		MomEducation:         parseInt(values["momEducation"]),
		SiblingPosition:      parseInt(values["siblingPosition"]),
		Residence:            parseString(values["residence"]),
		Education:            parseString(values["education"]),
		DevelopmentTreatment: parseString(values["developmentTreatment"]),
		SpecialEducation:     parseString(values["specialEducation"]),
	}
}

func parseInt(s string) *int {
	v, ok := domain.ParseInt(s)
	if !ok {
		return nil
	}
	return &v
}

func parseString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

type AgeEntry struct {
	Years    *int `json:"years"`
	Months   *int `json:"months"`
	Provided bool `json:"provided"`
}

type IntEntry struct {
	Value    *int `json:"value"`
	Provided bool `json:"provided"`
}

type StringEntry struct {
	Value    *string `json:"value"`
	Provided bool    `json:"provided"`
}

// Data is the per field view of demographics, with provided flags.
type Data struct {
	Age                  AgeEntry    `json:"age"`
	BirthDate            StringEntry `json:"birthDate"`
	Sex                  StringEntry `json:"sex"`
	MomEducation         IntEntry    `json:"momEducation"`
	SiblingPosition      IntEntry    `json:"siblingPosition"`
	Residence            StringEntry `json:"residence"`
	Education            StringEntry `json:"education"`
	DevelopmentTreatment StringEntry `json:"developmentTreatment"`
	SpecialEducation     StringEntry `json:"specialEducation"`
}

type Summary struct {
	ProvidedFields int `json:"providedFields"`
	TotalFields    int `json:"totalFields"`
	// CompletionPercentage has one decimal place, e.g. "33.3".
	CompletionPercentage string `json:"completionPercentage"`
}

// Report is the demographics section of an export.
type Report struct {
	Data    Data    `json:"data"`
	Summary Summary `json:"summary"`
}

// Process marks which fields were provided and computes completion.
func Process(d domain.Demographics) Report {
	str := func(v *string) StringEntry { return StringEntry{Value: v, Provided: v != nil} }
	num := func(v *int) IntEntry { return IntEntry{Value: v, Provided: v != nil} }

	data := Data{
		Age:                  AgeEntry{Years: d.AgeYears, Months: d.AgeMonths, Provided: d.AgeYears != nil || d.AgeMonths != nil},
		BirthDate:            str(d.BirthDate),
		Sex:                  str(d.Sex),
		MomEducation:         num(d.MomEducation),
		SiblingPosition:      num(d.SiblingPosition),
		Residence:            str(d.Residence),
		Education:            str(d.Education),
		DevelopmentTreatment: str(d.DevelopmentTreatment),
		SpecialEducation:     str(d.SpecialEducation),
	}
	provided := 0
	for _, ok := range data.provided() {
		if ok {
			provided++
		}
	}
	return Report{
		Data: data,
		Summary: Summary{
			ProvidedFields:       provided,
			TotalFields:          domain.DemographicFieldCount,
			CompletionPercentage: strconv.FormatFloat(float64(provided)/domain.DemographicFieldCount*100, 'f', 1, 64),
		},
	}
}

func (d Data) provided() []bool {
	return []bool{
		d.Age.Provided, d.BirthDate.Provided, d.Sex.Provided, d.MomEducation.Provided,
		d.SiblingPosition.Provided, d.Residence.Provided, d.Education.Provided,
		d.DevelopmentTreatment.Provided, d.SpecialEducation.Provided,
	}
}

// CSV renders the report as Field,Value,Provided rows followed by a blank
// line and a summary row.
func (r Report) CSV() ([]byte, error) {
	d := r.Data
	rows := [][]string{
		{"Field", "Value", "Provided"},
		{"Age", ageText(d.Age), yesNo(d.Age.Provided)},
		{"Birth Date", deref(d.BirthDate.Value), yesNo(d.BirthDate.Provided)},
		{"Sex", deref(d.Sex.Value), yesNo(d.Sex.Provided)},
		{"Mom's Years of Education", itoa(d.MomEducation.Value), yesNo(d.MomEducation.Provided)},
		{"Position Among Siblings", itoa(d.SiblingPosition.Value), yesNo(d.SiblingPosition.Provided)},
		{"Place of Residence", deref(d.Residence.Value), yesNo(d.Residence.Provided)},
		{"Education", deref(d.Education.Value), yesNo(d.Education.Provided)},
		{"Treated for Development", deref(d.DevelopmentTreatment.Value), yesNo(d.DevelopmentTreatment.Provided)},
		{"Special Education", deref(d.SpecialEducation.Value), yesNo(d.SpecialEducation.Provided)},
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	buf.WriteString("\n")
	if err := w.Write([]string{
		"Summary",
		fmt.Sprintf("%d/%d fields provided", r.Summary.ProvidedFields, r.Summary.TotalFields),
		r.Summary.CompletionPercentage + "%",
	}); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func ageText(a AgeEntry) string {
	var parts []string
	if a.Years != nil {
		parts = append(parts, fmt.Sprintf("%d years", *a.Years))
	}
	if a.Months != nil {
		parts = append(parts, fmt.Sprintf("%d months", *a.Months))
	}
	return strings.Join(parts, " ")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func itoa(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
