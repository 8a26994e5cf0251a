package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/user"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

// checkRole verifies the role of a referenced user. The DB lock must be held.
func (db *DB) checkRole(field, id string, want user.Role) error {
	usr, ok := db.users[id]
	if !ok {
		return core.NewConstraintViolation(field, "unknown user "+id)
	}
	if usr.Role != want {
		return core.NewConstraintViolation(field, "user "+id+" is not a "+string(want))
	}
	return nil
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, asgmt assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.db.checkRole("teacher", asgmt.TeacherID, user.RoleTeacher); err != nil {
		return assignment.Assignment{}, err
	}
	if _, ok := repo.db.courses[asgmt.CourseID]; !ok {
		return assignment.Assignment{}, core.NewConstraintViolation("course", "unknown course "+asgmt.CourseID)
	}
	repo.db.assignments[asgmt.ID] = asgmt
	record(ctx, func() { delete(repo.db.assignments, asgmt.ID) })
	return asgmt, nil
}

func (repo *assignmentRepository) GetAssignmentByID(_ context.Context, id string) (assignment.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if asgmt, ok := repo.db.assignments[id]; ok {
		return asgmt, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) ListAssignments(_ context.Context, filter assignment.Filter) ([]assignment.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	asgmts := make([]assignment.Assignment, 0)
	for _, asgmt := range repo.db.assignments {
		if filter.Match(asgmt) {
			asgmts = append(asgmts, asgmt)
		}
	}
	sort.Slice(asgmts, func(i, j int) bool {
		if asgmts[i].CreatedAt.Equal(asgmts[j].CreatedAt) {
			return asgmts[i].ID > asgmts[j].ID
		}
		return asgmts[i].CreatedAt.After(asgmts[j].CreatedAt)
	})
	return asgmts, nil
}

func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return assignment.ErrNotFound
	}
	repo.db.deleteAssignment(ctx, id)
	return nil
}

// deleteAssignment deletes the assignment & its submissions. The DB lock must be held.
func (db *DB) deleteAssignment(ctx context.Context, id string) {
	if asgmt, ok := db.assignments[id]; ok {
		delete(db.assignments, id)
		record(ctx, func() { db.assignments[asgmt.ID] = asgmt })
	}
	for _, sub := range db.submissions {
		if sub.AssignmentID == id {
			sub := sub
			delete(db.submissions, sub.ID)
			record(ctx, func() { db.submissions[sub.ID] = sub })
		}
	}
}

func (repo *assignmentRepository) CreateSubmission(ctx context.Context, sub assignment.Submission) (assignment.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.db.checkRole("student", sub.StudentID, user.RoleStudent); err != nil {
		return assignment.Submission{}, err
	}
	if _, ok := repo.db.assignments[sub.AssignmentID]; !ok {
		return assignment.Submission{}, core.NewConstraintViolation("assignment", "unknown assignment "+sub.AssignmentID)
	}
	repo.db.submissions[sub.ID] = sub
	record(ctx, func() { delete(repo.db.submissions, sub.ID) })
	return sub, nil
}

func (repo *assignmentRepository) ListSubmissions(_ context.Context, filter assignment.SubmissionFilter) ([]assignment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]assignment.Submission, 0)
	for _, sub := range repo.db.submissions {
		if filter.Match(sub) {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].ID > subs[j].ID
		}
		return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
	})
	return subs, nil
}
