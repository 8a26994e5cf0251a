package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func loadCourse(crs course.Course) course.Course {
	crs.StudentIDs = copyStrings(crs.StudentIDs)
	return crs
}

func (repo *courseRepository) CheckUniqueness(_ context.Context, courseID string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.checkUniqueness(courseID, excludedIDs...)
}

func (repo *courseRepository) checkUniqueness(courseID string, excludedIDs ...string) error {
	for _, crs := range repo.db.courses {
		if crs.CourseID == courseID && !core.ContainsString(excludedIDs, crs.ID) {
			return course.ErrCourseIDExists
		}
	}
	return nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	crs.StudentIDs = core.UniqueStrings(copyStrings(crs.StudentIDs))
	if err := course.CheckMembers(crs, repo.db.roles(course.MemberIDs(crs)...)); err != nil {
		return course.Course{}, err
	}
	if err := repo.checkUniqueness(crs.CourseID); err != nil {
		return course.Course{}, err
	}
	repo.db.courses[crs.ID] = crs
	record(ctx, func() { delete(repo.db.courses, crs.ID) })
	return loadCourse(crs), nil
}

func (repo *courseRepository) GetCourseByID(_ context.Context, id string) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return loadCourse(crs), nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) ListCourses(_ context.Context, filter course.Filter) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0)
	for _, crs := range repo.db.courses {
		if filter.Match(crs) {
			courses = append(courses, loadCourse(crs))
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CourseID < courses[j].CourseID })
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.courses[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	crs.PrincipalID = orig.PrincipalID
	crs.CreatedAt = orig.CreatedAt
	crs.StudentIDs = core.UniqueStrings(copyStrings(crs.StudentIDs))
	if err := course.CheckMembers(crs, repo.db.roles(course.MemberIDs(crs)...)); err != nil {
		return course.Course{}, err
	}
	if err := repo.checkUniqueness(crs.CourseID, crs.ID); err != nil {
		return course.Course{}, err
	}
	repo.db.courses[crs.ID] = crs
	record(ctx, func() { repo.db.courses[orig.ID] = orig })
	return loadCourse(crs), nil
}

func (repo *courseRepository) AddStudent(ctx context.Context, id, studentID string) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if role, ok := repo.db.roles(studentID)[studentID]; !ok || role != user.RoleStudent {
		return course.Course{}, core.NewConstraintViolation("students", "user "+studentID+" is not a "+string(user.RoleStudent))
	}
	if orig.HasStudent(studentID) {
		return loadCourse(orig), nil
	}

	crs := loadCourse(orig)
	crs.StudentIDs = append(crs.StudentIDs, studentID)
	repo.db.courses[id] = crs
	record(ctx, func() { repo.db.courses[orig.ID] = orig })
	return loadCourse(crs), nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.courses[id]
	if !ok {
		return course.ErrNotFound
	}
	delete(repo.db.courses, id)
	record(ctx, func() { repo.db.courses[orig.ID] = orig })

	for _, asgmt := range repo.db.assignments {
		if asgmt.CourseID == id {
			repo.db.deleteAssignment(ctx, asgmt.ID)
		}
	}
	return nil
}
