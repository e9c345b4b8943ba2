package issues

import (
	"context"
	"fmt"
	"time"

	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes issue persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, issue *models.Issue) error
	AppendHistory(ctx context.Context, entry *models.IssueStatusHistory) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	FindWithHistory(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	List(ctx context.Context, filter ListFilter) ([]models.Issue, int64, error)
	ListInBox(ctx context.Context, box boundingBox) ([]models.Issue, error)
	UpdateColumns(ctx context.Context, id uuid.UUID, cols map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddUpvote(ctx context.Context, issueID, userID uuid.UUID) (bool, error)
	RemoveUpvote(ctx context.Context, issueID, userID uuid.UUID) (bool, error)
	UpvotedBy(ctx context.Context, userID uuid.UUID, issueIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	Stats(ctx context.Context) (*Stats, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an issues repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Create inserts the issue together with its initial history entries.
func (r *repositoryImpl) Create(ctx context.Context, issue *models.Issue) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	for i := range issue.StatusHistory {
		if issue.StatusHistory[i].ID == uuid.Nil {
			issue.StatusHistory[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(issue).Error
}

func (r *repositoryImpl) AppendHistory(ctx context.Context, entry *models.IssueStatusHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	var issue models.Issue
	if err := r.db.WithContext(ctx).First(&issue, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &issue, nil
}

// FindByIDForUpdate row-locks the issue on Postgres; SQLite ignores the clause.
func (r *repositoryImpl) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	var issue models.Issue
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&issue, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *repositoryImpl) FindWithHistory(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	var issue models.Issue
	err := r.db.WithContext(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&issue, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *repositoryImpl) List(ctx context.Context, filter ListFilter) ([]models.Issue, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Issue{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Priority != nil {
		query = query.Where("priority = ?", *filter.Priority)
	}
	if filter.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filter.AssignedTo)
	}
	if filter.ReportedBy != nil {
		query = query.Where("reported_by = ?", *filter.ReportedBy)
	}
	if pattern := filter.searchPattern(); pattern != "" {
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(location_name) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Issue
	err := query.
		Order(orderClause(filter)).
		Order("id ASC").
		Limit(filter.window().Limit).
		Offset(filter.window().Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func orderClause(filter ListFilter) string {
	dir := "DESC"
	if filter.Ascending {
		dir = "ASC"
	}
	switch filter.Sort {
	case SortUpvotes:
		return "upvotes " + dir
	case SortPriority:
		return fmt.Sprintf(
			"CASE priority WHEN '%s' THEN 4 WHEN '%s' THEN 3 WHEN '%s' THEN 2 ELSE 1 END %s",
			enums.PriorityUrgent, enums.PriorityHigh, enums.PriorityMedium, dir,
		)
	default:
		return "created_at " + dir
	}
}

func (r *repositoryImpl) ListInBox(ctx context.Context, box boundingBox) ([]models.Issue, error) {
	query := r.db.WithContext(ctx).
		Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat)
	if !box.WrapsLon {
		query = query.Where("longitude BETWEEN ? AND ?", box.MinLon, box.MaxLon)
	}
	var rows []models.Issue
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) UpdateColumns(ctx context.Context, id uuid.UUID, cols map[string]any) error {
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.Issue{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the issue and the rows it owns. Notification records keep
// their soft reference.
func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("issue_id = ?", id).Delete(&models.IssueStatusHistory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("issue_id = ?", id).Delete(&models.IssueUpvote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("issue_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Issue{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// AddUpvote inserts the (issue, user) vote if absent and bumps the counter in
// the same transaction. It reports false when the vote already existed.
func (r *repositoryImpl) AddUpvote(ctx context.Context, issueID, userID uuid.UUID) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vote := models.IssueUpvote{IssueID: issueID, UserID: userID, CreatedAt: time.Now().UTC()}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&vote)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}
		if err := tx.Model(&models.Issue{}).
			Where("id = ?", issueID).
			UpdateColumn("upvotes", gorm.Expr("upvotes + 1")).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// RemoveUpvote deletes the vote if present and decrements the counter, never
// below zero.
func (r *repositoryImpl) RemoveUpvote(ctx context.Context, issueID, userID uuid.UUID) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("issue_id = ? AND user_id = ?", issueID, userID).Delete(&models.IssueUpvote{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}
		if err := tx.Model(&models.Issue{}).
			Where("id = ?", issueID).
			UpdateColumn("upvotes", gorm.Expr("CASE WHEN upvotes > 0 THEN upvotes - 1 ELSE 0 END")).Error; err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

func (r *repositoryImpl) UpvotedBy(ctx context.Context, userID uuid.UUID, issueIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(issueIDs))
	if userID == uuid.Nil || len(issueIDs) == 0 {
		return out, nil
	}
	var votes []models.IssueUpvote
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND issue_id IN ?", userID, issueIDs).
		Find(&votes).Error; err != nil {
		return nil, err
	}
	for _, v := range votes {
		out[v.IssueID] = true
	}
	return out, nil
}

type statusCount struct {
	Status enums.IssueStatus
	Count  int64
}

type categoryCount struct {
	Category enums.IssueCategory
	Count    int64
}

func (r *repositoryImpl) Stats(ctx context.Context) (*Stats, error) {
	db := r.db.WithContext(ctx)
	stats := &Stats{
		ByStatus:   map[enums.IssueStatus]int64{},
		ByCategory: map[enums.IssueCategory]int64{},
	}
	for _, status := range enums.IssueStatuses() {
		stats.ByStatus[status] = 0
	}

	var byStatus []statusCount
	if err := db.Model(&models.Issue{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		stats.ByStatus[row.Status] = row.Count
		stats.Total += row.Count
	}

	var byCategory []categoryCount
	if err := db.Model(&models.Issue{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Scan(&byCategory).Error; err != nil {
		return nil, err
	}
	for _, row := range byCategory {
		stats.ByCategory[row.Category] = row.Count
	}

	var avg struct {
		Average *float64
	}
	if err := db.Model(&models.Issue{}).
		Select("AVG(actual_resolution_days) AS average").
		Where("actual_resolution_days IS NOT NULL").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	stats.AverageResolutionDays = avg.Average
	return stats, nil
}
