package demographics

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/google/go-cmp/cmp"

	"github.com/lewtec/pagetagger/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestParse(t *testing.T) {
	got := Parse(map[string]string{
		"ageYears":     "7",
		"ageMonths":    "",
		"sex":          "  female ",
		"momEducation": "12 years",
		"residence":    "",
		"education":    "primary",
		"unknown":      "ignored",
	})
	want := domain.Demographics{
		AgeYears:     ptr(7),
		Sex:          ptr("female"),
		MomEducation: ptr(12),
		Education:    ptr("primary"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name     string
		in       domain.Demographics
		provided int
		percent  string
	}{
		{"empty", domain.Demographics{}, 0, "0.0"},
		{"age counts once", domain.Demographics{AgeYears: ptr(5), AgeMonths: ptr(3)}, 1, "11.1"},
		{"months alone count as age", domain.Demographics{AgeMonths: ptr(0)}, 1, "11.1"},
		{"three fields", domain.Demographics{AgeYears: ptr(5), Sex: ptr("male"), Residence: ptr("rural")}, 3, "33.3"},
		{"all fields", domain.Demographics{
			AgeYears: ptr(5), BirthDate: ptr("2019-01-01"), Sex: ptr("male"), MomEducation: ptr(0),
			SiblingPosition: ptr(1), Residence: ptr("rural"), Education: ptr("none"),
			DevelopmentTreatment: ptr("no"), SpecialEducation: ptr("no"),
		}, 9, "100.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Process(tt.in).Summary
			want := Summary{ProvidedFields: tt.provided, TotalFields: 9, CompletionPercentage: tt.percent}
			if got != want {
				t.Errorf("Summary = %+v, want %+v", got, want)
			}
		})
	}
}

func TestReport_JSON(t *testing.T) {
	r := Process(domain.Demographics{AgeYears: ptr(5), Sex: ptr("female")})
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	data := got["data"].(map[string]any)
	if diff := cmp.Diff(map[string]any{"years": 5.0, "months": nil, "provided": true}, data["age"]); diff != "" {
		t.Errorf("age mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"value": nil, "provided": false}, data["birthDate"]); diff != "" {
		t.Errorf("birthDate mismatch (-want +got):\n%s", diff)
	}
	summary := got["summary"].(map[string]any)
	if summary["completionPercentage"] != "22.2" {
		t.Errorf("completionPercentage = %v, want 22.2", summary["completionPercentage"])
	}
}

func TestReport_CSV(t *testing.T) {
	r := Process(domain.Demographics{
		AgeYears:  ptr(5),
		AgeMonths: ptr(3),
		Sex:       ptr("female"),
		Residence: ptr("Springfield, IL"),
	})
	got, err := r.CSV()
	if err != nil {
		t.Fatalf("CSV() error = %v", err)
	}
	want := "Field,Value,Provided\n" +
		"Age,5 years 3 months,Yes\n" +
		"Birth Date,,No\n" +
		"Sex,female,Yes\n" +
		"Mom's Years of Education,,No\n" +
		"Position Among Siblings,,No\n" +
		"Place of Residence,\"Springfield, IL\",Yes\n" +
		"Education,,No\n" +
		"Treated for Development,,No\n" +
		"Special Education,,No\n" +
		"\n" +
		"Summary,3/9 fields provided,33.3%\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("CSV() mismatch (-want +got):\n%s", diff)
	}
}

func TestFileSource(t *testing.T) {
	fs := memfs.New()
	content := "ageYears: 7\nsex: male\nmomEducation:\nresidence: urban\n"
	if err := util.WriteFile(fs, "participant.yaml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FileSource{FS: fs, Path: "participant.yaml"}.Demographics(context.Background())
	if err != nil {
		t.Fatalf("Demographics() error = %v", err)
	}
	want := domain.Demographics{AgeYears: ptr(7), Sex: ptr("male"), Residence: ptr("urban")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Demographics() mismatch (-want +got):\n%s", diff)
	}

	t.Run("missing file", func(t *testing.T) {
		got, err := FileSource{FS: fs, Path: "nope.yaml"}.Demographics(context.Background())
		if err != nil || got != (domain.Demographics{}) {
			t.Errorf("Demographics() = %+v, %v, want empty", got, err)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		_ = util.WriteFile(fs, "bad.yaml", []byte("- a\n- b\n"), 0o644)
		if _, err := (FileSource{FS: fs, Path: "bad.yaml"}).Demographics(context.Background()); err == nil {
			t.Error("Demographics() on a list succeeded")
		}
	})
}

func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTemplate(&buf); err != nil {
		t.Fatalf("WriteTemplate() error = %v", err)
	}
	fs := memfs.New()
	_ = util.WriteFile(fs, "t.yaml", buf.Bytes(), 0o644)
	got, err := FileSource{FS: fs, Path: "t.yaml"}.Demographics(context.Background())
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if got != (domain.Demographics{}) {
		t.Errorf("template parses to %+v, want empty", got)
	}
	for _, k := range Keys {
		if !bytes.Contains(buf.Bytes(), []byte(k+":")) {
			t.Errorf("template lacks key %s", k)
		}
	}
}

func TestMapSource(t *testing.T) {
	got, err := MapSource{"siblingPosition": "2"}.Demographics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.SiblingPosition == nil || *got.SiblingPosition != 2 {
		t.Errorf("SiblingPosition = %v, want 2", got.SiblingPosition)
	}
}
