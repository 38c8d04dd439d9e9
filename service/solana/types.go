package solana

// TransactionSummary is a readable view of a legacy transaction, used for
// logging, inspection and pre-submit checks.
type TransactionSummary struct {
	FeePayer        string               `json:"fee_payer"`
	RecentBlockhash string               `json:"recent_blockhash"`
	Signers         []string             `json:"signers"`
	MissingSigners  []string             `json:"missing_signers"`
	Instructions    []InstructionSummary `json:"instructions"`
}

// InstructionSummary describes a single instruction. Fields that do not apply
// to the instruction type are nil.
type InstructionSummary struct {
	Program     string  `json:"program"`
	ProgramID   string  `json:"program_id"`
	Type        string  `json:"type"`
	Accounts    int     `json:"accounts"`
	Amount      *uint64 `json:"amount,omitempty"`
	Decimals    *uint8  `json:"decimals,omitempty"`
	Source      *string `json:"source,omitempty"`
	Destination *string `json:"destination,omitempty"`
	Authority   *string `json:"authority,omitempty"`
	Mint        *string `json:"mint,omitempty"`
	Memo        *string `json:"memo,omitempty"`
}
