package dto

import (
	"mime/multipart"
	"strings"

	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/service"
)

// Multipart text fields accepted by the material endpoints.
const (
	FieldSem               = "sem"
	FieldSubject           = "subject"
	FieldChapterNumber     = "ch_number"
	FieldChapterName       = "ch_name"
	FieldLabNumber         = "lab_number"
	FieldLabName           = "lab_name"
	FieldNoteNumber        = "note_number"
	FieldNoteName          = "note_name"
	FieldAssignmentNumber  = "assignment_number"
	FieldAssignmentName    = "assignment_name"
	FieldUniMidPaperYear   = "uni_midPaper_year"
	FieldUniFinalPaperYear = "uni_finalPaper_year"
	FieldGTUPaper          = "gtu_paper"
	FieldContributorName   = "name"
	FieldInstaURL          = "insta_url"
	FieldLinkedInURL       = "linkedin_url"
	FieldGitURL            = "git_url"
)

// MaterialFieldsFromForm reads every text attribute of a material.
func MaterialFieldsFromForm(form *multipart.Form) service.MaterialFields {
	v := func(key string) string { return formValue(form, key) }
	return service.MaterialFields{
		Sem:               v(FieldSem),
		Subject:           v(FieldSubject),
		Chapter:           domain.NumberedEntry{Number: v(FieldChapterNumber), Name: v(FieldChapterName)},
		Lab:               domain.NumberedEntry{Number: v(FieldLabNumber), Name: v(FieldLabName)},
		Note:              domain.NumberedEntry{Number: v(FieldNoteNumber), Name: v(FieldNoteName)},
		Assignment:        domain.NumberedEntry{Number: v(FieldAssignmentNumber), Name: v(FieldAssignmentName)},
		UniMidPaperYear:   v(FieldUniMidPaperYear),
		UniFinalPaperYear: v(FieldUniFinalPaperYear),
		GTUPaper:          v(FieldGTUPaper),
		Contributor: domain.Contributor{
			Name:        v(FieldContributorName),
			InstaURL:    v(FieldInstaURL),
			LinkedInURL: v(FieldLinkedInURL),
			GitURL:      v(FieldGitURL),
		},
	}
}

// MaterialPatchFromForm sets only the fields present in the form.
func MaterialPatchFromForm(form *multipart.Form) service.MaterialPatch {
	p := func(key string) *string {
		if form == nil {
			return nil
		}
		values, ok := form.Value[key]
		if !ok || len(values) == 0 {
			return nil
		}
		value := values[0]
		return &value
	}
	return service.MaterialPatch{
		Sem:               p(FieldSem),
		Subject:           p(FieldSubject),
		ChapterNumber:     p(FieldChapterNumber),
		ChapterName:       p(FieldChapterName),
		LabNumber:         p(FieldLabNumber),
		LabName:           p(FieldLabName),
		NoteNumber:        p(FieldNoteNumber),
		NoteName:          p(FieldNoteName),
		AssignmentNumber:  p(FieldAssignmentNumber),
		AssignmentName:    p(FieldAssignmentName),
		UniMidPaperYear:   p(FieldUniMidPaperYear),
		UniFinalPaperYear: p(FieldUniFinalPaperYear),
		GTUPaper:          p(FieldGTUPaper),
		ContributorName:   p(FieldContributorName),
		InstaURL:          p(FieldInstaURL),
		LinkedInURL:       p(FieldLinkedInURL),
		GitURL:            p(FieldGitURL),
	}
}

func formValue(form *multipart.Form, key string) string {
	if form == nil {
		return ""
	}
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// PurchaseResponse wraps a purchase with whether it was just created.
type PurchaseResponse struct {
	Purchase *domain.Purchase `json:"purchase"`
	Created  bool             `json:"created"`
}
