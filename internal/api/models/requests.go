package models

// AmountRequest carries a base-10 token amount in base units.
type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type AddPoolRequest struct {
	RewardWeight uint64 `json:"reward_weight"`
	StakeAsset   string `json:"stake_asset" binding:"required"`
	WithUpdate   bool   `json:"with_update"`
}

type SetPoolRequest struct {
	RewardWeight uint64 `json:"reward_weight"`
	WithUpdate   bool   `json:"with_update"`
}

type RegisterWebhookRequest struct {
	URL string `json:"url" binding:"required"`
}
