package service

// PoolView is the JSON rendering of a pool and its vault.
type PoolView struct {
	ID                uint64 `json:"id"`
	Asset             string `json:"asset"`
	Kind              string `json:"kind"`
	Weight            uint64 `json:"weight"`
	TotalStaked       string `json:"totalStaked"`
	WithdrawFeeRate   uint64 `json:"withdrawFeeRate"`
	LastRewardTime    uint64 `json:"lastRewardTime"`
	AccRewardPerShare string `json:"accRewardPerShare"`
	Vault             string `json:"vault"`
	VaultBalance      string `json:"vaultBalance"`
	TotalPrincipal    string `json:"totalPrincipal"`
	Strategy          string `json:"strategy,omitempty"`
	PendingYield      string `json:"pendingYield"`
}

// PositionView is a user's stake, rewards and vault principal in one pool.
type PositionView struct {
	PoolID     uint64 `json:"pid"`
	User       string `json:"user"`
	Amount     string `json:"amount"`
	RewardDebt string `json:"rewardDebt"`
	Pending    string `json:"pending"`
	// PendingAfterFee is advisory: it applies the pool's withdrawal fee to
	// the pending reward, which harvest itself does not charge.
	PendingAfterFee string `json:"pendingAfterFee"`
	Principal       string `json:"principal"`
}

// GlobalsView is the farm-wide state.
type GlobalsView struct {
	Owner            string   `json:"owner"`
	RewardToken      string   `json:"rewardToken"`
	BaseEmissionRate string   `json:"baseEmissionRate"`
	CurrentRate      string   `json:"currentRate"`
	BonusEndTime     uint64   `json:"bonusEndTime"`
	MiningStarted    bool     `json:"miningStarted"`
	MiningStartTime  uint64   `json:"miningStartTime"`
	TotalAllocWeight uint64   `json:"totalAllocWeight"`
	TotalPaidRewards string   `json:"totalPaidRewards"`
	RewardBalance    string   `json:"rewardBalance"`
	PoolCount        uint64   `json:"poolCount"`
	Paused           []string `json:"paused"`
}
