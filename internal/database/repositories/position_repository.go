package repositories

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stakelabs/harvest-server/internal/core/models"
)

var ErrPositionNotFound = errors.New("position not found")

// PositionRow is the persisted (pool, user) stake record.
type PositionRow struct {
	PoolID       uint64    `gorm:"primaryKey;autoIncrement:false"`
	User         string    `gorm:"primaryKey;type:varchar(42)"`
	StakedAmount string    `gorm:"type:varchar(78);not null"`
	RewardDebt   string    `gorm:"type:varchar(78);not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (PositionRow) TableName() string {
	return "positions"
}

type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) Save(ctx context.Context, position *models.Position) error {
	row := PositionRow{
		PoolID:       position.PoolID,
		User:         position.User.Hex(),
		StakedAmount: position.StakedAmount.String(),
		RewardDebt:   position.RewardDebt.String(),
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pool_id"}, {Name: "user"}},
		DoUpdates: clause.AssignmentColumns([]string{"staked_amount", "reward_debt", "updated_at"}),
	}).Create(&row)
	return result.Error
}

func (r *PositionRepository) Get(ctx context.Context, poolID uint64, user common.Address) (*models.Position, error) {
	var row PositionRow
	result := r.db.WithContext(ctx).
		Where("pool_id = ? AND \"user\" = ?", poolID, user.Hex()).
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, result.Error
	}
	return rowToPosition(&row)
}

func (r *PositionRepository) List(ctx context.Context) ([]*models.Position, error) {
	var rows []PositionRow
	if err := r.db.WithContext(ctx).Order("pool_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	positions := make([]*models.Position, 0, len(rows))
	for i := range rows {
		position, err := rowToPosition(&rows[i])
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, nil
}

func rowToPosition(row *PositionRow) (*models.Position, error) {
	staked, ok := new(big.Int).SetString(row.StakedAmount, 10)
	if !ok {
		return nil, fmt.Errorf("position (%d, %s): invalid staked amount %q", row.PoolID, row.User, row.StakedAmount)
	}
	debt, ok := new(big.Int).SetString(row.RewardDebt, 10)
	if !ok {
		return nil, fmt.Errorf("position (%d, %s): invalid reward debt %q", row.PoolID, row.User, row.RewardDebt)
	}
	return &models.Position{
		PoolID:       row.PoolID,
		User:         common.HexToAddress(row.User),
		StakedAmount: staked,
		RewardDebt:   debt,
	}, nil
}
