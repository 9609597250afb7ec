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

var ErrPoolNotFound = errors.New("pool not found")

// PoolRow is the persisted pool record. Big integers are stored as base-10
// strings; uint256 values do not fit SQL integer columns.
type PoolRow struct {
	ID               uint64    `gorm:"primaryKey"`
	StakeAsset       string    `gorm:"type:varchar(42);not null"`
	RewardWeight     uint64    `gorm:"not null"`
	LastAccrualTick  uint64    `gorm:"not null"`
	AccRewardPerUnit string    `gorm:"type:varchar(78);not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (PoolRow) TableName() string {
	return "pools"
}

type PoolRepository struct {
	db *gorm.DB
}

func NewPoolRepository(db *gorm.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

func (r *PoolRepository) Save(ctx context.Context, pool *models.Pool) error {
	row := PoolRow{
		ID:               pool.ID,
		StakeAsset:       pool.StakeAsset.Hex(),
		RewardWeight:     pool.RewardWeight,
		LastAccrualTick:  pool.LastAccrualTick,
		AccRewardPerUnit: pool.AccRewardPerUnit.String(),
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stake_asset", "reward_weight", "last_accrual_tick", "acc_reward_per_unit", "updated_at"}),
	}).Create(&row)
	return result.Error
}

func (r *PoolRepository) Get(ctx context.Context, id uint64) (*models.Pool, error) {
	var row PoolRow
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, result.Error
	}
	return rowToPool(&row)
}

func (r *PoolRepository) List(ctx context.Context) ([]*models.Pool, error) {
	var rows []PoolRow
	if err := r.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	pools := make([]*models.Pool, 0, len(rows))
	for i := range rows {
		pool, err := rowToPool(&rows[i])
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

func rowToPool(row *PoolRow) (*models.Pool, error) {
	acc, ok := new(big.Int).SetString(row.AccRewardPerUnit, 10)
	if !ok {
		return nil, fmt.Errorf("pool %d: invalid accumulator value %q", row.ID, row.AccRewardPerUnit)
	}
	return &models.Pool{
		ID:               row.ID,
		StakeAsset:       common.HexToAddress(row.StakeAsset),
		RewardWeight:     row.RewardWeight,
		LastAccrualTick:  row.LastAccrualTick,
		AccRewardPerUnit: acc,
	}, nil
}
