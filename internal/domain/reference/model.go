package reference

// Entry maps one exact exam name to its classification. Owned by the catalog
// maintenance workflow; the pipeline only reads it.
type Entry struct {
	ExamName  string `db:"exam_name" json:"exam_name"`
	Modality  string `db:"modality" json:"modality"`
	Specialty string `db:"specialty" json:"specialty"`
	Category  string `db:"category" json:"category"`
}

// PrioritySynonym maps a free-text priority spelling to the canonical
// vocabulary.
type PrioritySynonym struct {
	Synonym   string `db:"synonym" json:"synonym"`
	Canonical string `db:"canonical" json:"canonical"`
}

// ClientAlias maps a client-name variant to the canonical company name.
type ClientAlias struct {
	Alias     string `db:"alias" json:"alias"`
	Canonical string `db:"canonical" json:"canonical"`
}

// PriceEntry is the configured unit value for an exam under a modality.
type PriceEntry struct {
	ExamName string  `db:"exam_name" json:"exam_name"`
	Modality string  `db:"modality" json:"modality"`
	Value    float64 `db:"value" json:"value"`
}

// QuebraRule configures an exam split: one source exam replaced by the
// derived list.
type QuebraRule struct {
	ExamName     string   `db:"exam_name" json:"exam_name"`
	DerivedExams []string `db:"derived_exams" json:"derived_exams"`
}

// ExclusionCriterion is one dynamically configured exclusion: records whose
// field equals value are removed. Evaluated in ascending priority order.
type ExclusionCriterion struct {
	ID       int64  `db:"id" json:"id"`
	Field    string `db:"field" json:"field"`
	Value    string `db:"value" json:"value"`
	Priority int    `db:"priority" json:"priority"`
	Active   bool   `db:"active" json:"active"`
}
