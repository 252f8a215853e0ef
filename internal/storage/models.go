package storage

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/google/uuid"

	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/pkg/decoder"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

type AccountModel struct {
	ID         string    `json:"id" bson:"_id,omitempty" db:"id"`
	Pubkey     string    `json:"pubkey" bson:"pubkey" db:"pubkey"`
	Lamports   uint64    `json:"lamports" bson:"lamports" db:"lamports"`
	Data       []byte    `json:"data" bson:"data" db:"data"`
	Owner      string    `json:"owner" bson:"owner" db:"owner"`
	Executable bool      `json:"executable" bson:"executable" db:"executable"`
	RentEpoch  uint64    `json:"rent_epoch" bson:"rent_epoch" db:"rent_epoch"`
	Slot       uint64    `json:"slot" bson:"slot" db:"slot"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

type TransactionModel struct {
	ID              string    `json:"id" bson:"_id,omitempty" db:"id"`
	Signature       string    `json:"signature" bson:"signature" db:"signature"`
	Slot            uint64    `json:"slot" bson:"slot" db:"slot"`
	BlockTime       int64     `json:"block_time" bson:"block_time" db:"block_time"`
	Success         bool      `json:"success" bson:"success" db:"success"`
	ErrorCode       string    `json:"error_code,omitempty" bson:"error_code,omitempty" db:"error_code"`
	ErrorMessage    string    `json:"error_message,omitempty" bson:"error_message,omitempty" db:"error_message"`
	AccountKeys     []string  `json:"account_keys" bson:"account_keys" db:"account_keys"`
	NumInstructions int       `json:"num_instructions" bson:"num_instructions" db:"num_instructions"`
	LogMessages     []string  `json:"log_messages,omitempty" bson:"log_messages,omitempty" db:"log_messages"`
	ReturnData      []byte    `json:"return_data,omitempty" bson:"return_data,omitempty" db:"return_data"`
	DurationMicros  int64     `json:"duration_us" bson:"duration_us" db:"duration_us"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

type InstructionModel struct {
	ID               string    `json:"id" bson:"_id,omitempty" db:"id"`
	Signature        string    `json:"signature" bson:"signature" db:"signature"`
	InstructionIndex int       `json:"instruction_index" bson:"instruction_index" db:"instruction_index"`
	ProgramID        string    `json:"program_id" bson:"program_id" db:"program_id"`
	Name             string    `json:"name,omitempty" bson:"name,omitempty" db:"name"`
	Data             []byte    `json:"data" bson:"data" db:"data"`
	Accounts         []string  `json:"accounts" bson:"accounts" db:"accounts"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

type EventModel struct {
	ID        string         `json:"id" bson:"_id,omitempty" db:"id"`
	Signature string         `json:"signature" bson:"signature" db:"signature"`
	ProgramID string         `json:"program_id" bson:"program_id" db:"program_id"`
	EventName string         `json:"event_name" bson:"event_name" db:"event_name"`
	Data      map[string]any `json:"data" bson:"data" db:"data"`
	RawData   []byte         `json:"raw_data" bson:"raw_data" db:"raw_data"`
	Slot      uint64         `json:"slot" bson:"slot" db:"slot"`
	BlockTime int64          `json:"block_time" bson:"block_time" db:"block_time"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at" db:"created_at"`
}

// BalanceRecordModel is the decoded view of a custody balance record.
type BalanceRecordModel struct {
	ID              string    `json:"id" bson:"_id,omitempty" db:"id"`
	Address         string    `json:"address" bson:"address" db:"address"`
	Mint            string    `json:"mint" bson:"mint" db:"mint"`
	Owner           string    `json:"owner" bson:"owner" db:"owner"`
	Amount          uint64    `json:"amount" bson:"amount" db:"amount"`
	Delegate        *string   `json:"delegate,omitempty" bson:"delegate,omitempty" db:"delegate"`
	DelegatedAmount uint64    `json:"delegated_amount" bson:"delegated_amount" db:"delegated_amount"`
	CloseAuthority  *string   `json:"close_authority,omitempty" bson:"close_authority,omitempty" db:"close_authority"`
	Slot            uint64    `json:"slot" bson:"slot" db:"slot"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

// Account converts the model back into a ledger record.
func (m *AccountModel) Account() (types.Pubkey, *types.Account, error) {
	key, err := solana.PublicKeyFromBase58(m.Pubkey)
	if err != nil {
		return types.Pubkey{}, nil, err
	}
	owner, err := solana.PublicKeyFromBase58(m.Owner)
	if err != nil {
		return types.Pubkey{}, nil, err
	}
	return key, &types.Account{
		Lamports:   m.Lamports,
		Data:       m.Data,
		Owner:      owner,
		Executable: m.Executable,
		RentEpoch:  m.RentEpoch,
	}, nil
}

func AccountToModel(pubkey types.Pubkey, account *types.Account, slot uint64) *AccountModel {
	now := time.Now()
	return &AccountModel{
		ID:         pubkey.String(),
		Pubkey:     pubkey.String(),
		Lamports:   account.Lamports,
		Data:       account.Data,
		Owner:      account.Owner.String(),
		Executable: account.Executable,
		RentEpoch:  account.RentEpoch,
		Slot:       slot,
		UpdatedAt:  now,
		CreatedAt:  now,
	}
}

func ResultToTransactionModel(result *ledger.Result) *TransactionModel {
	model := &TransactionModel{
		ID:             result.Signature.String(),
		Signature:      result.Signature.String(),
		Slot:           result.Slot,
		BlockTime:      result.BlockTime,
		Success:        result.Success(),
		LogMessages:    result.Logs,
		DurationMicros: result.Duration.Microseconds(),
		CreatedAt:      time.Now(),
	}
	if result.Err != nil {
		model.ErrorCode = result.ErrorCode()
		model.ErrorMessage = result.Err.Error()
	}
	if result.ReturnData != nil {
		model.ReturnData = result.ReturnData.Data
	}
	if tx := result.Transaction; tx != nil {
		model.AccountKeys = make([]string, 0, len(tx.Message.AccountKeys))
		for _, key := range tx.Message.AccountKeys {
			model.AccountKeys = append(model.AccountKeys, key.String())
		}
		model.NumInstructions = len(tx.Message.Instructions)
	}
	return model
}

// ResultToInstructionModels returns one model per top-level instruction.
// name labels instructions of known programs and may be nil.
func ResultToInstructionModels(result *ledger.Result, name func(programID types.Pubkey, data []byte) string) []*InstructionModel {
	tx := result.Transaction
	if tx == nil {
		return nil
	}

	now := time.Now()
	models := make([]*InstructionModel, 0, len(tx.Message.Instructions))
	for i, ci := range tx.Message.Instructions {
		programID, err := tx.Message.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			continue
		}
		accounts := make([]string, 0, len(ci.Accounts))
		for _, idx := range ci.Accounts {
			if int(idx) < len(tx.Message.AccountKeys) {
				accounts = append(accounts, tx.Message.AccountKeys[idx].String())
			}
		}
		model := &InstructionModel{
			ID:               uuid.NewString(),
			Signature:        result.Signature.String(),
			InstructionIndex: i,
			ProgramID:        programID.String(),
			Data:             ci.Data,
			Accounts:         accounts,
			CreatedAt:        now,
		}
		if name != nil {
			model.Name = name(programID, ci.Data)
		}
		models = append(models, model)
	}
	return models
}

func EventToModel(event *decoder.Event, signature solana.Signature, slot uint64, blockTime int64) *EventModel {
	return &EventModel{
		ID:        uuid.NewString(),
		Signature: signature.String(),
		ProgramID: event.ProgramID.String(),
		EventName: event.Name,
		Data:      eventFields(event.Data),
		RawData:   event.RawData,
		Slot:      slot,
		BlockTime: blockTime,
		CreatedAt: time.Now(),
	}
}

// eventFields flattens a decoded event into its JSON field map. Integers
// are kept as json.Number so u64 amounts survive.
func eventFields(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		return map[string]any{"value": string(raw)}
	}
	return fields
}

func BalanceRecordToModel(address types.Pubkey, record *token.Account, slot uint64) *BalanceRecordModel {
	now := time.Now()
	model := &BalanceRecordModel{
		ID:              address.String(),
		Address:         address.String(),
		Mint:            record.Mint.String(),
		Owner:           record.Owner.String(),
		Amount:          record.Amount,
		DelegatedAmount: record.DelegatedAmount,
		Slot:            slot,
		UpdatedAt:       now,
		CreatedAt:       now,
	}

	if record.Delegate != nil {
		delegate := record.Delegate.String()
		model.Delegate = &delegate
	}

	if record.CloseAuthority != nil {
		closeAuthority := record.CloseAuthority.String()
		model.CloseAuthority = &closeAuthority
	}

	return model
}
