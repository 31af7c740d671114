package core

import (
	"errors"
	"strings"
	"time"
)

const (
	FeeOpen    FeeStatus = "OPEN"
	FeeSettled FeeStatus = "SETTLED"
)

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

type (
	FeeStatus string

	Role string

	Money struct {
		Cents int64
	}

	Student struct {
		ID               int64     `json:"id"`
		StudentName      string    `json:"studentName"`
		ParentsName      string    `json:"parentsName"`
		RollNumber       string    `json:"rollNumber"`
		ClassName        string    `json:"class"`
		Section          string    `json:"section"`
		SchoolJoinedDate Date      `json:"schoolJoinedDate"`
		DateOfBirth      Date      `json:"dateOfBirth"`
		PhoneNumber      string    `json:"phoneNumber"`
		CreatedAt        time.Time `json:"createdAt"`
		UpdatedAt        time.Time `json:"updatedAt"`
	}

	// StudentInput carries every writable student field. Dates stay as
	// strings until validation so the failing field can be named.
	StudentInput struct {
		StudentName      string `json:"studentName" validate:"required,max=100"`
		ParentsName      string `json:"parentsName" validate:"required,max=100"`
		RollNumber       string `json:"rollNumber" validate:"required,max=20"`
		ClassName        string `json:"class" validate:"required,max=20"`
		Section          string `json:"section" validate:"required,max=10"`
		SchoolJoinedDate string `json:"schoolJoinedDate" validate:"required,datetime=2006-01-02"`
		DateOfBirth      string `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
		PhoneNumber      string `json:"phoneNumber" validate:"required,max=20"`
	}

	// StudentPatch is a partial update; nil fields are left untouched.
	StudentPatch struct {
		StudentName      *string `json:"studentName"`
		ParentsName      *string `json:"parentsName"`
		RollNumber       *string `json:"rollNumber"`
		ClassName        *string `json:"class"`
		Section          *string `json:"section"`
		SchoolJoinedDate *string `json:"schoolJoinedDate"`
		DateOfBirth      *string `json:"dateOfBirth"`
		PhoneNumber      *string `json:"phoneNumber"`
	}

	StudentQuery struct {
		Page   int
		Limit  int
		Search string
	}

	StudentPage struct {
		Data  []Student `json:"data"`
		Total int64     `json:"total"`
		Page  int       `json:"page"`
		Limit int       `json:"limit"`
	}

	FeeType struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	FeeTypeInput struct {
		Name        string `json:"name" validate:"required,max=50"`
		Description string `json:"description" validate:"max=200"`
	}

	Fee struct {
		ID           int64     `json:"id"`
		StudentID    int64     `json:"student_id"`
		FeeTypeID    int64     `json:"fee_type_id"`
		TotalAmount  Money     `json:"total_amount"`
		AcademicYear string    `json:"academic_year"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	FeeInput struct {
		FeeTypeID    int64  `json:"fee_type_id" validate:"required,gt=0"`
		TotalAmount  *Money `json:"total_amount"`
		AcademicYear string `json:"academic_year" validate:"omitempty,academic_year"`
	}

	FeePayment struct {
		ID            int64     `json:"id"`
		FeeID         int64     `json:"fee_id"`
		Amount        Money     `json:"amount_paid"`
		PaymentDate   time.Time `json:"payment_date"`
		PaymentMethod string    `json:"payment_method"`
		Remarks       string    `json:"remarks"`
		CreatedAt     time.Time `json:"created_at"`
		UpdatedAt     time.Time `json:"updated_at"`
	}

	PaymentInput struct {
		Amount        *Money `json:"amount"`
		PaymentDate   string `json:"payment_date"`
		PaymentMethod string `json:"payment_method" validate:"max=50"`
		Remarks       string `json:"remarks" validate:"max=200"`
	}

	// FeeStatement is a fee with its balance derived from the payment set.
	FeeStatement struct {
		Fee
		FeeTypeName     string       `json:"fee_type_name"`
		FeeType         FeeType      `json:"fee_type"`
		TotalPaid       Money        `json:"total_paid"`
		RemainingAmount Money        `json:"remaining_amount"`
		Status          FeeStatus    `json:"status"`
		Payments        []FeePayment `json:"payments"`
	}

	// PaymentRecord is a payment joined with everything the payment
	// register needs to describe it.
	PaymentRecord struct {
		Payment      FeePayment
		AcademicYear string
		FeeTypeName  string
		Student      Student
		ExportedAt   *time.Time
	}

	User struct {
		ID           int64      `json:"id"`
		Email        string     `json:"email"`
		PasswordHash string     `json:"-"`
		FirstName    string     `json:"first_name"`
		LastName     string     `json:"last_name"`
		Role         Role       `json:"role"`
		IsActive     bool       `json:"is_active"`
		LastLogin    *time.Time `json:"last_login"`
		CreatedAt    time.Time  `json:"created_at"`
		UpdatedAt    time.Time  `json:"updated_at"`
	}

	RegisterInput struct {
		Email     string `json:"email" validate:"required,email,max=120"`
		Password  string `json:"password" validate:"required,min=8,max=72"`
		FirstName string `json:"first_name" validate:"required,max=50"`
		LastName  string `json:"last_name" validate:"required,max=50"`
		Role      Role   `json:"role" validate:"required,oneof=student teacher admin"`
	}

	LoginInput struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")

	ErrOverpayment = &Error{Kind: KindValidation, Message: "payment exceeds remaining amount"}
)

// Normalize trims surrounding whitespace from every field.
func (in StudentInput) Normalize() StudentInput {
	in.StudentName = strings.TrimSpace(in.StudentName)
	in.ParentsName = strings.TrimSpace(in.ParentsName)
	in.RollNumber = strings.TrimSpace(in.RollNumber)
	in.ClassName = strings.TrimSpace(in.ClassName)
	in.Section = strings.TrimSpace(in.Section)
	in.SchoolJoinedDate = strings.TrimSpace(in.SchoolJoinedDate)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	return in
}

// Input returns the writable fields of s.
func (s Student) Input() StudentInput {
	return StudentInput{
		StudentName:      s.StudentName,
		ParentsName:      s.ParentsName,
		RollNumber:       s.RollNumber,
		ClassName:        s.ClassName,
		Section:          s.Section,
		SchoolJoinedDate: s.SchoolJoinedDate.String(),
		DateOfBirth:      s.DateOfBirth.String(),
		PhoneNumber:      s.PhoneNumber,
	}
}

// Apply overlays the fields present in p onto in.
func (p StudentPatch) Apply(in StudentInput) StudentInput {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&in.StudentName, p.StudentName)
	set(&in.ParentsName, p.ParentsName)
	set(&in.RollNumber, p.RollNumber)
	set(&in.ClassName, p.ClassName)
	set(&in.Section, p.Section)
	set(&in.SchoolJoinedDate, p.SchoolJoinedDate)
	set(&in.DateOfBirth, p.DateOfBirth)
	set(&in.PhoneNumber, p.PhoneNumber)
	return in
}

// Normalize clamps paging to sane bounds and trims the search term.
func (q StudentQuery) Normalize() StudentQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit < 1:
		q.Limit = DefaultPageLimit
	case q.Limit > MaxPageLimit:
		q.Limit = MaxPageLimit
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Offset returns the number of rows to skip for the current page.
func (q StudentQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

func (in FeeTypeInput) Normalize() FeeTypeInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func (in RegisterInput) Normalize() RegisterInput {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Role = Role(strings.ToLower(strings.TrimSpace(string(in.Role))))
	return in
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}
