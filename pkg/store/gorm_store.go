package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"portfoliohub/pkg/domain"
)

const migrateLockID int64 = 51842207

type GormStoreOptions struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
	SkipMigrate   bool
}

type GormStoreOption func(*GormStoreOptions)

// WithSlowThreshold sets the duration after which queries are logged as slow.
func WithSlowThreshold(d time.Duration) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.SlowThreshold = d
	}
}

// WithSQLLogLevel overrides the GORM log level (default Warn).
func WithSQLLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// WithoutMigrate skips auto-migration; used by processes that only read.
func WithoutMigrate() GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.SkipMigrate = true
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{SlowThreshold: time.Second, LogLevel: gormlogger.Warn}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if !opts.SkipMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an already opened connection.
func NewGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates tables and the relation constraints under an advisory lock
// so concurrent processes do not race on DDL.
func Migrate(db *gorm.DB) error {
	return withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(allModels()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		for _, fk := range foreignKeys {
			if err := tx.Exec(fk.ddl()).Error; err != nil {
				return fmt.Errorf("ensure %s: %w", fk.name, err)
			}
		}
		return nil
	})
}

type foreignKey struct {
	table    string
	name     string
	column   string
	refTable string
	onDelete string
}

var foreignKeys = []foreignKey{
	{"employee_profiles", ConstraintEmployeeUserFK, "user_id", "users", "CASCADE"},
	{"projects", ConstraintProjectAuthor, "author_id", "users", "RESTRICT"},
	{"project_assets", ConstraintAssetProject, "project_id", "projects", "CASCADE"},
	{"project_assets", ConstraintAssetUploader, "uploader_id", "users", "SET NULL"},
	{"project_tags", ConstraintProjectTagProj, "project_id", "projects", "CASCADE"},
	{"project_tags", ConstraintProjectTagTag, "tag_id", "tags", "CASCADE"},
	{"comments", ConstraintCommentProject, "project_id", "projects", "CASCADE"},
	{"comments", ConstraintCommentAuthor, "author_id", "users", "CASCADE"},
	{"comments", ConstraintCommentParent, "parent_id", "comments", "CASCADE"},
	{"likes", ConstraintLikeProject, "project_id", "projects", "CASCADE"},
	{"likes", ConstraintLikeUser, "user_id", "users", "CASCADE"},
}

func (fk foreignKey) ddl() string {
	return fmt.Sprintf(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = '%[1]s'
				AND constraint_name = '%[2]s'
			) THEN
				ALTER TABLE %[1]s
				ADD CONSTRAINT %[2]s
				FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE %[5]s;
			END IF;
		END $$;
	`, fk.table, fk.name, fk.column, fk.refTable, fk.onDelete)
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// findOne loads a single row; a missing row is (zero, false, nil).
func findOne[M any](db *gorm.DB, query string, args ...any) (M, bool, error) {
	var model M
	err := db.Where(query, args...).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model, false, nil
	}
	if err != nil {
		return model, false, translateError(err)
	}
	return model, true, nil
}

// updateRow overwrites every column except id and created_at.
func updateRow(db *gorm.DB, model any) error {
	res := db.Model(model).Select("*").Omit("id", "created_at").Updates(model)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// updateColumns writes only cols on the row with id.
func updateColumns[M any](db *gorm.DB, id string, cols map[string]any) error {
	var model M
	res := db.Model(&model).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteRow[M any](db *gorm.DB, query string, args ...any) error {
	var model M
	res := db.Where(query, args...).Delete(&model)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// paginate counts the filtered rows, then loads one page. base must be a
// shareable session.
func paginate[M any](base *gorm.DB, page Page, order string) ([]M, int, error) {
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}
	page = page.Normalize()
	var models []M
	if err := base.Order(order).Limit(page.Limit).Offset(page.Offset).Find(&models).Error; err != nil {
		return nil, 0, translateError(err)
	}
	return models, int(total), nil
}

func mapSlice[M, D any](models []M, fn func(M) D) []D {
	out := make([]D, 0, len(models))
	for _, m := range models {
		out = append(out, fn(m))
	}
	return out
}

type groupCount struct {
	Key   string
	Count int
}

func (s *GormStore) groupCounts(model any, column string, conds ...any) ([]groupCount, error) {
	var rows []groupCount
	tx := s.db.Model(model).Select(column + " AS key, COUNT(*) AS count").Group(column)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func likePattern(search string) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.TrimSpace(search))
	return "%" + escaped + "%"
}

// CreateUser inserts a user; a taken email yields ErrConflict.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return translateError(s.db.Create(&model).Error)
}

// firstUserLock keys the advisory lock taken around the first sign-up.
const firstUserLock = 0x7068_7573_6572

func (s *GormStore) CreateUserFirstRole(u domain.User, firstRole domain.UserRole) (domain.User, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", firstUserLock).Error; err != nil {
			return fmt.Errorf("lock users: %w", err)
		}
		var exists bool
		if err := tx.Raw("SELECT EXISTS (SELECT 1 FROM users)").Scan(&exists).Error; err != nil {
			return err
		}
		if !exists {
			u.Role = firstRole
		}
		model := userToModel(u)
		return translateError(tx.Create(&model).Error)
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UpdateUser overwrites an existing user.
func (s *GormStore) UpdateUser(u domain.User) error {
	model := userToModel(u)
	return updateRow(s.db, &model)
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	model, ok, err := findOne[UserModel](s.db, "email = ?", email)
	if err != nil || !ok {
		return domain.User{}, ok, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	model, ok, err := findOne[UserModel](s.db, "id = ?", id)
	if err != nil || !ok {
		return domain.User{}, ok, err
	}
	return userFromModel(model), true, nil
}

// GetUserByVerifyToken returns the user holding a pending verification token hash.
func (s *GormStore) GetUserByVerifyToken(tokenHash string) (domain.User, bool, error) {
	if tokenHash == "" {
		return domain.User{}, false, nil
	}
	model, ok, err := findOne[UserModel](s.db, "email_verify_token = ?", tokenHash)
	if err != nil || !ok {
		return domain.User{}, ok, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns one page of users, newest first.
func (s *GormStore) ListUsers(filter UserFilter, page Page) ([]domain.User, int, error) {
	tx := s.db.Model(&UserModel{})
	if filter.Role != "" {
		tx = tx.Where("role = ?", string(filter.Role))
	}
	if filter.Active != nil {
		tx = tx.Where("is_active = ?", *filter.Active)
	}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := likePattern(filter.Search)
		tx = tx.Where("(email ILIKE ? OR name ILIKE ?)", pattern, pattern)
	}
	models, total, err := paginate[UserModel](tx.Session(&gorm.Session{}), page, "created_at DESC, id ASC")
	if err != nil {
		return nil, 0, err
	}
	return mapSlice(models, userFromModel), total, nil
}

// CountUsersByRole groups users by role.
func (s *GormStore) CountUsersByRole() (map[domain.UserRole]int, error) {
	rows, err := s.groupCounts(&UserModel{}, "role")
	if err != nil {
		return nil, err
	}
	out := make(map[domain.UserRole]int, len(rows))
	for _, r := range rows {
		out[domain.UserRole(r.Key)] = r.Count
	}
	return out, nil
}

// TouchUserActivity records activity, and a login when login is set.
func (s *GormStore) TouchUserActivity(id string, at time.Time, login bool) error {
	updates := map[string]any{"last_active_at": at.UTC()}
	if login {
		updates["last_login_at"] = at.UTC()
	}
	res := s.db.Model(&UserModel{}).Where("id = ?", id).UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetUserRefreshToken(id, tokenHash string) error {
	res := s.db.Model(&UserModel{}).Where("id = ?", id).UpdateColumn("refresh_token", optString(tokenHash))
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user. Profiles, comments and likes cascade; authored
// projects restrict.
func (s *GormStore) DeleteUser(id string) error {
	return deleteRow[UserModel](s.db, "id = ?", id)
}

// CreateEmployeeProfile inserts an HR profile for an existing user.
func (s *GormStore) CreateEmployeeProfile(p domain.EmployeeProfile) error {
	model := employeeToModel(p)
	return translateError(s.db.Create(&model).Error)
}

func (s *GormStore) UpdateEmployeeProfile(p domain.EmployeeProfile) error {
	model := employeeToModel(p)
	return updateRow(s.db, &model)
}

func (s *GormStore) GetEmployeeProfile(id string) (domain.EmployeeProfile, bool, error) {
	model, ok, err := findOne[EmployeeProfileModel](s.db, "id = ?", id)
	if err != nil || !ok {
		return domain.EmployeeProfile{}, ok, err
	}
	return employeeFromModel(model), true, nil
}

func (s *GormStore) GetEmployeeProfileByUser(userID string) (domain.EmployeeProfile, bool, error) {
	model, ok, err := findOne[EmployeeProfileModel](s.db, "user_id = ?", userID)
	if err != nil || !ok {
		return domain.EmployeeProfile{}, ok, err
	}
	return employeeFromModel(model), true, nil
}

func (s *GormStore) ListEmployeeProfiles(filter EmployeeFilter, page Page) ([]domain.EmployeeProfile, int, error) {
	tx := s.db.Model(&EmployeeProfileModel{})
	if filter.Department != "" {
		tx = tx.Where("department = ?", filter.Department)
	}
	models, total, err := paginate[EmployeeProfileModel](tx.Session(&gorm.Session{}), page, "department ASC, employee_id ASC")
	if err != nil {
		return nil, 0, err
	}
	return mapSlice(models, employeeFromModel), total, nil
}

func (s *GormStore) DeleteEmployeeProfile(id string) error {
	return deleteRow[EmployeeProfileModel](s.db, "id = ?", id)
}

// SalaryStatsByDepartment aggregates salaries per department.
func (s *GormStore) SalaryStatsByDepartment() ([]DepartmentSalaryStats, error) {
	var rows []DepartmentSalaryStats
	err := s.db.Model(&EmployeeProfileModel{}).
		Select("department, COUNT(*) AS headcount, COALESCE(SUM(salary), 0) AS total, " +
			"COALESCE(AVG(salary), 0) AS average, COALESCE(MIN(salary), 0) AS min, COALESCE(MAX(salary), 0) AS max").
		Group("department").
		Order("department ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Average = rows[i].Average.Round(2)
	}
	return rows, nil
}
