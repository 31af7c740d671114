package services

import (
	"context"
	"errors"
	"log/slog"

	"feeledger/internal/core"
	"feeledger/internal/storage"
)

// StudentService manages the student directory.
type StudentService struct {
	repo *storage.Repository
	now  Clock
}

func NewStudentService(repo *storage.Repository) *StudentService {
	return &StudentService{repo: repo, now: utcNow}
}

func (s *StudentService) List(ctx context.Context, q core.StudentQuery) (core.StudentPage, error) {
	q = q.Normalize()
	students, total, err := s.repo.ListStudents(ctx, q)
	if err != nil {
		return core.StudentPage{}, translate(err, "", "")
	}
	if students == nil {
		students = []core.Student{}
	}
	return core.StudentPage{Data: students, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

func (s *StudentService) Get(ctx context.Context, id int64) (core.Student, error) {
	st, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return core.Student{}, translate(err, msgStudentNotFound, "")
	}
	return st, nil
}

func (s *StudentService) Create(ctx context.Context, in core.StudentInput) (core.Student, error) {
	params, err := studentParams(in)
	if err != nil {
		return core.Student{}, err
	}

	var created core.Student
	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		created, err = q.CreateStudent(ctx, params, s.now())
		return err
	})
	if err != nil {
		return core.Student{}, translate(err, "", msgDuplicateRoll)
	}

	slog.InfoContext(ctx, "Student created", "student_id", created.ID, "roll_number", created.RollNumber)
	return created, nil
}

// Update applies the fields present in patch and re-validates the merged
// record with the same rules as Create.
func (s *StudentService) Update(ctx context.Context, id int64, patch core.StudentPatch) (core.Student, error) {
	var updated core.Student
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		current, err := q.GetStudent(ctx, id)
		if err != nil {
			return err
		}
		params, err := studentParams(patch.Apply(current.Input()))
		if err != nil {
			return err
		}
		updated, err = q.UpdateStudent(ctx, id, params, s.now())
		return err
	})
	if err != nil {
		return core.Student{}, translate(err, msgStudentNotFound, msgDuplicateRoll)
	}
	return updated, nil
}

// Delete removes a student that has no fees.
func (s *StudentService) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetStudent(ctx, id); err != nil {
			return err
		}
		n, err := q.CountFeesForStudent(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return core.Conflictf("Cannot delete a student who has fees")
		}
		return q.DeleteStudent(ctx, id)
	})
	if err != nil {
		if errors.Is(err, storage.ErrReferenced) {
			return core.Conflictf("Cannot delete a student who has fees")
		}
		return translate(err, msgStudentNotFound, "")
	}

	slog.InfoContext(ctx, "Student deleted", "student_id", id)
	return nil
}

func studentParams(in core.StudentInput) (storage.StudentParams, error) {
	in = in.Normalize()
	if err := core.Validate(in); err != nil {
		return storage.StudentParams{}, err
	}
	joined, err := core.ParseDate(in.SchoolJoinedDate)
	if err != nil {
		return storage.StudentParams{}, core.Validationf("Invalid date format for schoolJoinedDate. Please use YYYY-MM-DD format.")
	}
	born, err := core.ParseDate(in.DateOfBirth)
	if err != nil {
		return storage.StudentParams{}, core.Validationf("Invalid date format for dateOfBirth. Please use YYYY-MM-DD format.")
	}
	return storage.StudentParams{
		StudentName:      in.StudentName,
		ParentsName:      in.ParentsName,
		RollNumber:       in.RollNumber,
		ClassName:        in.ClassName,
		Section:          in.Section,
		SchoolJoinedDate: joined,
		DateOfBirth:      born,
		PhoneNumber:      in.PhoneNumber,
	}, nil
}
