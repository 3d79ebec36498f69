package solana

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRPC struct {
	mu       sync.Mutex
	accounts []TokenAccount
	err      error
	statuses []*SignatureStatus // returned in order, last one repeats
	calls    int
}

func (f *fakeRPC) GetTokenAccountsByOwner(_ context.Context, _, _ string) ([]TokenAccount, error) {
	return f.accounts, f.err
}

func (f *fakeRPC) SendTransaction(_ context.Context, _ string, _ *SendOpts) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, _ []string) ([]*SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.calls++
	return []*SignatureStatus{f.statuses[i]}, nil
}

func TestPositions_TokenBalance(t *testing.T) {
	tests := []struct {
		name     string
		accounts []TokenAccount
		want     string
		wantErr  bool
	}{
		{"no accounts", nil, "0", false},
		{"single", []TokenAccount{{Pubkey: "a", Amount: "42"}}, "42", false},
		{"sums above u64", []TokenAccount{
			{Pubkey: "a", Amount: "18446744073709551615"},
			{Pubkey: "b", Amount: "10"},
		}, "18446744073709551625", false},
		{"skips empty", []TokenAccount{{Pubkey: "a", Amount: ""}, {Pubkey: "b", Amount: "5"}}, "5", false},
		{"invalid amount", []TokenAccount{{Pubkey: "a", Amount: "1.5"}}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPositions(&fakeRPC{accounts: tt.accounts}, "Owner1")
			got, err := p.TokenBalance(context.Background(), "MintA")
			if (err != nil) != tt.wantErr {
				t.Fatalf("TokenBalance error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TokenBalance = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPositions_RPCError(t *testing.T) {
	p := NewPositions(&fakeRPC{err: errors.New("boom")}, "Owner1")
	if _, err := p.TokenBalance(context.Background(), "MintA"); err == nil {
		t.Error("expected error")
	}
	if p.Owner() != "Owner1" {
		t.Errorf("unexpected owner %s", p.Owner())
	}
}

func TestWaitForSignature(t *testing.T) {
	rpc := &fakeRPC{statuses: []*SignatureStatus{
		nil,
		{Slot: 5, ConfirmationStatus: CommitmentProcessed},
		{Slot: 6, ConfirmationStatus: CommitmentConfirmed},
	}}

	st, err := WaitForSignature(context.Background(), rpc, "sig", time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForSignature: %v", err)
	}
	if st.Slot != 6 {
		t.Errorf("expected slot 6, got %d", st.Slot)
	}
	if rpc.calls != 3 {
		t.Errorf("expected 3 polls, got %d", rpc.calls)
	}
}

func TestWaitForSignature_Failed(t *testing.T) {
	rpc := &fakeRPC{statuses: []*SignatureStatus{
		{Slot: 5, ConfirmationStatus: CommitmentConfirmed, Err: map[string]interface{}{"InstructionError": 1}},
	}}

	st, err := WaitForSignature(context.Background(), rpc, "sig", time.Millisecond)
	if err == nil {
		t.Fatal("expected failure")
	}
	if st == nil || st.Err == nil {
		t.Error("expected failed status returned")
	}
}

func TestWaitForSignature_ContextDone(t *testing.T) {
	rpc := &fakeRPC{statuses: []*SignatureStatus{nil}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := WaitForSignature(ctx, rpc, "sig", 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
