package records

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceFile identifies which kind of volumetry file a record came from.
type SourceFile string

const (
	SourceStandard         SourceFile = "padrao"
	SourceNonStandard      SourceFile = "fora_padrao"
	SourceStandardRetro    SourceFile = "padrao_retroativo"
	SourceNonStandardRetro SourceFile = "fora_padrao_retroativo"
	SourceOncoStandard     SourceFile = "onco_padrao"
)

// SourceFiles lists every valid source file kind.
var SourceFiles = []SourceFile{
	SourceStandard,
	SourceNonStandard,
	SourceStandardRetro,
	SourceNonStandardRetro,
	SourceOncoStandard,
}

func ParseSourceFile(s string) (SourceFile, error) {
	sf := SourceFile(s)
	for _, known := range SourceFiles {
		if sf == known {
			return sf, nil
		}
	}
	return "", fmt.Errorf("unknown source file %q", s)
}

// IsRetroactive reports whether records in this file carry exams performed
// before the billing period they are reported in.
func (s SourceFile) IsRetroactive() bool {
	return s == SourceStandardRetro || s == SourceNonStandardRetro
}

// Canonical priority vocabulary.
const (
	PriorityUrgency  = "URGÊNCIA"
	PriorityRoutine  = "ROTINA"
	PriorityElective = "ELETIVO"
)

// Billing types assigned by tipification.
const (
	BillingPlantao    = "PLANTAO"
	BillingRetroativo = "RETROATIVO"
	BillingOnco       = "ONCO"
	BillingRotina     = "ROTINA"
)

// ExamRecord is one row of the record store: a single diagnostic exam event.
// Classification attributes are mutable by pipeline rules; a record may also
// be deleted by an exclusion rule, paired with a rejection ledger entry.
type ExamRecord struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	SourceFile      SourceFile `db:"source_file" json:"source_file"`
	UploadBatch     string     `db:"upload_batch" json:"upload_batch"`
	ReferencePeriod string     `db:"reference_period" json:"reference_period"`

	Modality    string `db:"modality" json:"modality"`
	Specialty   string `db:"specialty" json:"specialty"`
	Category    string `db:"category" json:"category"`
	Priority    string `db:"priority" json:"priority"`
	BillingType string `db:"billing_type" json:"billing_type"`

	Company         string  `db:"company" json:"company"`
	PatientName     string  `db:"patient_name" json:"patient_name"`
	ExamDescription string  `db:"exam_description" json:"exam_description"`
	Physician       string  `db:"physician" json:"physician"`
	AccessionNumber string  `db:"accession_number" json:"accession_number"`
	Value           float64 `db:"value" json:"value"`

	DateOfExam     *time.Time `db:"date_of_exam" json:"date_of_exam,omitempty"`
	DateOfReport   *time.Time `db:"date_of_report" json:"date_of_report,omitempty"`
	DateOfDeadline *time.Time `db:"date_of_deadline" json:"date_of_deadline,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Selector scopes a rule or query to a source file, optionally narrowed to
// one upload batch. An empty UploadBatch means every batch of the file,
// which is how backfills run.
type Selector struct {
	SourceFile  SourceFile `json:"source_file"`
	UploadBatch string     `json:"upload_batch,omitempty"`
}

func (s Selector) Validate() error {
	if _, err := ParseSourceFile(string(s.SourceFile)); err != nil {
		return err
	}
	return nil
}

func (s Selector) String() string {
	if s.UploadBatch == "" {
		return string(s.SourceFile)
	}
	return fmt.Sprintf("%s/%s", s.SourceFile, s.UploadBatch)
}
