package studentscorner

import "errors"

var ErrMissingRollNumber = errors.New("missing roll_number")

// Account is the pair of credentials used to log into the portal.
type Account struct {
	RollNumber string `json:"roll_number"`
	Password   string `json:"password"`
}

// Validate reports whether the account can be used for a login attempt, an
// empty password is allowed.
func (a Account) Validate() error {
	if a.RollNumber == "" {
		return ErrMissingRollNumber
	}
	return nil
}

type Student struct {
	Name       *string `json:"name"`
	RollNumber *string `json:"roll_number"`
}

type Subject struct {
	Code       string   `json:"code"`
	Title      string   `json:"title"`
	GradePoint *float64 `json:"grade_point"`
	Grade      string   `json:"grade"`
	Status     string   `json:"status"`
	Credits    float64  `json:"credits"`
}

type Semester struct {
	// Semester is the label exactly as the page shows it, ex. "Semester - III"
	Semester string    `json:"semester"`
	Subjects []Subject `json:"subjects"`
	SGPA     *float64  `json:"sgpa,omitempty"`
}

type Overall struct {
	TotalCredits   *float64 `json:"total_credits"`
	SecuredCredits *float64 `json:"secured_credits"`
	CGPA           *float64 `json:"cgpa"`
}

// Transcript is everything extracted from a single credit register page.
type Transcript struct {
	Student   Student    `json:"student"`
	Semesters []Semester `json:"semesters"`
	Overall   Overall    `json:"overall"`
}
