package domain

import "time"

// AssetField names a file slot of a material. The values double as the
// multipart field names accepted on upload.
type AssetField string

const (
	AssetPPT           AssetField = "ppt_upload"
	AssetLab           AssetField = "lab_upload"
	AssetNote          AssetField = "note_upload"
	AssetAssignment    AssetField = "assignment_upload"
	AssetUniMidPaper   AssetField = "uni_midPaper_upload"
	AssetUniFinalPaper AssetField = "uni_finalPaper_upload"
	AssetGTUPaper      AssetField = "gtu_paper_upload"
	AssetPhoto         AssetField = "photo"
)

// AssetFields lists every upload slot in a stable order.
var AssetFields = []AssetField{
	AssetPPT,
	AssetLab,
	AssetNote,
	AssetAssignment,
	AssetUniMidPaper,
	AssetUniFinalPaper,
	AssetGTUPaper,
	AssetPhoto,
}

// ParseAssetField returns the field matching name.
func ParseAssetField(name string) (AssetField, bool) {
	for _, f := range AssetFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// MediaAsset references a file held by the media host.
type MediaAsset struct {
	PublicID    string `json:"public_id"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// NumberedEntry is a numbered, named item such as a chapter or lab.
type NumberedEntry struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

// Contributor credits the author of a material.
type Contributor struct {
	Name        string `json:"name"`
	InstaURL    string `json:"insta_url"`
	LinkedInURL string `json:"linkedin_url"`
	GitURL      string `json:"git_url"`
}

// Material is a bundle of study files owned by the administrator who uploaded it.
type Material struct {
	ID                string                    `json:"id"`
	CreatorID         string                    `json:"creatorId"`
	Sem               string                    `json:"sem"`
	Subject           string                    `json:"subject"`
	Chapter           NumberedEntry             `json:"chapter"`
	Lab               NumberedEntry             `json:"lab"`
	Note              NumberedEntry             `json:"note"`
	Assignment        NumberedEntry             `json:"assignment"`
	UniMidPaperYear   string                    `json:"uni_midPaper_year"`
	UniFinalPaperYear string                    `json:"uni_finalPaper_year"`
	GTUPaper          string                    `json:"gtu_paper"`
	Contributor       Contributor               `json:"contributor"`
	Assets            map[AssetField]MediaAsset `json:"assets"`
	CreatedAt         time.Time                 `json:"createdAt"`
	UpdatedAt         time.Time                 `json:"updatedAt"`
}

// OwnedBy reports whether adminID created the material.
func (m *Material) OwnedBy(adminID string) bool {
	return m != nil && m.CreatorID != "" && m.CreatorID == adminID
}

// Purchase records that a user unlocked a material.
type Purchase struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	MaterialID string    `json:"materialId"`
	CreatedAt  time.Time `json:"createdAt"`
}
