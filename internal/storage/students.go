package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feeledger/internal/core"
)

type studentRow struct {
	ID               int64     `db:"id"`
	StudentName      string    `db:"student_name"`
	ParentsName      string    `db:"parents_name"`
	RollNumber       string    `db:"roll_number"`
	ClassName        string    `db:"class_name"`
	Section          string    `db:"section"`
	SchoolJoinedDate core.Date `db:"school_joined_date"`
	DateOfBirth      core.Date `db:"date_of_birth"`
	PhoneNumber      string    `db:"phone_number"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r studentRow) toCore() core.Student {
	return core.Student{
		ID:               r.ID,
		StudentName:      r.StudentName,
		ParentsName:      r.ParentsName,
		RollNumber:       r.RollNumber,
		ClassName:        r.ClassName,
		Section:          r.Section,
		SchoolJoinedDate: r.SchoolJoinedDate,
		DateOfBirth:      r.DateOfBirth,
		PhoneNumber:      r.PhoneNumber,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

// StudentParams are the persisted student fields with dates already parsed.
type StudentParams struct {
	StudentName      string
	ParentsName      string
	RollNumber       string
	ClassName        string
	Section          string
	SchoolJoinedDate core.Date
	DateOfBirth      core.Date
	PhoneNumber      string
}

const studentColumns = `id, student_name, parents_name, roll_number, class_name, section,
	school_joined_date, date_of_birth, phone_number, created_at, updated_at`

// ListStudents returns one page of students ordered by id, plus the total
// number of students matching the search.
func (q *Queries) ListStudents(ctx context.Context, query core.StudentQuery) ([]core.Student, int64, error) {
	where := ""
	var args []any
	if query.Search != "" {
		fold := q.lower()
		where = ` WHERE ` + fold + `(student_name) LIKE ? ESCAPE '\'
			OR ` + fold + `(parents_name) LIKE ? ESCAPE '\'
			OR ` + fold + `(roll_number) LIKE ? ESCAPE '\'`
		pattern := "%" + escapeLike(strings.ToLower(query.Search)) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	var total int64
	if err := q.get(ctx, &total, `SELECT COUNT(*) FROM students`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	var rows []studentRow
	pageArgs := append(append([]any{}, args...), query.Limit, query.Offset())
	err := q.selectAll(ctx, &rows,
		`SELECT `+studentColumns+` FROM students`+where+` ORDER BY id LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	students := make([]core.Student, len(rows))
	for i, r := range rows {
		students[i] = r.toCore()
	}
	return students, total, nil
}

func (q *Queries) GetStudent(ctx context.Context, id int64) (core.Student, error) {
	var row studentRow
	if err := q.get(ctx, &row, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id); err != nil {
		return core.Student{}, fmt.Errorf("get student %d: %w", id, classify(err))
	}
	return row.toCore(), nil
}

func (q *Queries) CreateStudent(ctx context.Context, p StudentParams, now time.Time) (core.Student, error) {
	id, err := q.insert(ctx, `INSERT INTO students (student_name, parents_name, roll_number, class_name,
		section, school_joined_date, date_of_birth, phone_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		p.StudentName, p.ParentsName, p.RollNumber, p.ClassName, p.Section,
		p.SchoolJoinedDate, p.DateOfBirth, p.PhoneNumber, now, now)
	if err != nil {
		return core.Student{}, fmt.Errorf("create student: %w", err)
	}
	return q.GetStudent(ctx, id)
}

func (q *Queries) UpdateStudent(ctx context.Context, id int64, p StudentParams, now time.Time) (core.Student, error) {
	res, err := q.exec(ctx, `UPDATE students SET student_name = ?, parents_name = ?, roll_number = ?,
		class_name = ?, section = ?, school_joined_date = ?, date_of_birth = ?, phone_number = ?,
		updated_at = ? WHERE id = ?`,
		p.StudentName, p.ParentsName, p.RollNumber, p.ClassName, p.Section,
		p.SchoolJoinedDate, p.DateOfBirth, p.PhoneNumber, now, id)
	if err != nil {
		return core.Student{}, fmt.Errorf("update student %d: %w", id, classify(err))
	}
	if err := requireAffected(res); err != nil {
		return core.Student{}, fmt.Errorf("update student %d: %w", id, err)
	}
	return q.GetStudent(ctx, id)
}

func (q *Queries) DeleteStudent(ctx context.Context, id int64) error {
	res, err := q.exec(ctx, `DELETE FROM students WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete student %d: %w", id, classify(err))
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete student %d: %w", id, err)
	}
	return nil
}

func (q *Queries) StudentExists(ctx context.Context, id int64) (bool, error) {
	var n int64
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM students WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check student %d: %w", id, err)
	}
	return n > 0, nil
}

// CountFeesForStudent returns how many fees reference the student.
func (q *Queries) CountFeesForStudent(ctx context.Context, studentID int64) (int64, error) {
	var n int64
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM fees WHERE student_id = ?`, studentID); err != nil {
		return 0, fmt.Errorf("count fees for student %d: %w", studentID, err)
	}
	return n, nil
}
