package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
)

type fakeLedgerService struct {
	ledger.LedgerService

	calls      []string
	lastParams ledger.TransferParams
	err        error
}

func (f *fakeLedgerService) ProcessTransferCommand(ctx context.Context, messageID string, p ledger.TransferParams, rawPayload []byte) error {
	f.calls = append(f.calls, messageID)
	f.lastParams = p
	return f.err
}

func TestTransferCommandHandler(t *testing.T) {
	validPayload := []byte(`{"command_id":"cmd-1","from_account_id":"acc-a","to_account_id":"acc-b","amount":"30","description":"rent"}`)

	tests := []struct {
		name       string
		payload    []byte
		serviceErr error
		wantCalls  int
		wantErr    bool
	}{
		{
			name:      "valid command",
			payload:   validPayload,
			wantCalls: 1,
		},
		{
			name:    "malformed json is skipped",
			payload: []byte(`{"command_id":`),
		},
		{
			name:    "missing command_id is skipped",
			payload: []byte(`{"from_account_id":"acc-a","to_account_id":"acc-b","amount":"30"}`),
		},
		{
			name:       "caller error is not retried",
			payload:    validPayload,
			serviceErr: domain.ErrInsufficientFunds,
			wantCalls:  1,
		},
		{
			name:       "infrastructure error is retried",
			payload:    validPayload,
			serviceErr: domain.ErrPersistenceFailure,
			wantCalls:  1,
			wantErr:    true,
		},
		{
			name:       "duplicate command reports success",
			payload:    validPayload,
			serviceErr: nil,
			wantCalls:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeLedgerService{err: tt.serviceErr}
			handler := TransferCommandMessageHandler(svc, zap.NewNop())

			err := handler(context.Background(), kafka.Message{Topic: "ledger.transfer.commands", Value: tt.payload})
			if tt.wantErr && err == nil {
				t.Fatal("handler returned nil, want an error for redelivery")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("handler returned %v, want nil", err)
			}
			if len(svc.calls) != tt.wantCalls {
				t.Fatalf("service called %d times, want %d", len(svc.calls), tt.wantCalls)
			}
			if tt.wantErr && !errors.Is(err, tt.serviceErr) {
				t.Errorf("error %v does not wrap %v", err, tt.serviceErr)
			}
		})
	}
}

func TestTransferCommandHandlerPassesParams(t *testing.T) {
	svc := &fakeLedgerService{}
	handler := TransferCommandMessageHandler(svc, zap.NewNop())

	payload := []byte(`{"command_id":"cmd-9","from_account_id":"acc-a","to_account_id":"acc-b","amount":"12.50","description":"invoice 9"}`)
	if err := handler(context.Background(), kafka.Message{Value: payload}); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if svc.calls[0] != "cmd-9" {
		t.Errorf("message id = %s, want cmd-9", svc.calls[0])
	}
	p := svc.lastParams
	if p.FromAccountID != "acc-a" || p.ToAccountID != "acc-b" || p.Description != "invoice 9" {
		t.Errorf("unexpected params: %+v", p)
	}
	if p.Amount.String() != "12.5" {
		t.Errorf("amount = %s, want 12.5", p.Amount)
	}
}
