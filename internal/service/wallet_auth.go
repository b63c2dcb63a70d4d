package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts"
	"github.com/luxfi/geth/common"
	"github.com/redis/go-redis/v9"

	"github.com/learnframe/learnframe-backend/internal/config"
)

// Wallet login errors.
var (
	ErrNoChallenge      = errors.New("no pending login challenge")
	ErrInvalidSignature = errors.New("invalid wallet signature")
)

// WalletChallengeTTL bounds how long a login message can be signed.
const WalletChallengeTTL = 5 * time.Minute

// NonceStore keeps at most one pending login challenge per wallet.
type NonceStore interface {
	Put(ctx context.Context, wallet, message string, ttl time.Duration) error
	// Take returns and deletes the pending challenge, or ErrNoChallenge.
	Take(ctx context.Context, wallet string) (string, error)
}

type redisNonceStore struct {
	rdb *redis.Client
}

func (s redisNonceStore) Put(ctx context.Context, wallet, message string, ttl time.Duration) error {
	return s.rdb.Set(ctx, config.CacheKey.WalletNonceKey(wallet), message, ttl).Err()
}

func (s redisNonceStore) Take(ctx context.Context, wallet string) (string, error) {
	msg, err := s.rdb.GetDel(ctx, config.CacheKey.WalletNonceKey(wallet)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoChallenge
	}
	if err != nil {
		return "", fmt.Errorf("take challenge: %w", err)
	}
	return msg, nil
}

// WithNonceStore replaces the Redis-backed challenge store.
func (s *AuthService) WithNonceStore(store NonceStore) *AuthService {
	s.nonces = store
	return s
}

// WalletChallenge issues a fresh message for the wallet to sign. A new
// challenge replaces any pending one.
func (s *AuthService) WalletChallenge(ctx context.Context, wallet common.Address) (string, error) {
	msg := challengeMessage(wallet, uuid.NewString(), time.Now())
	if err := s.nonces.Put(ctx, wallet.Hex(), msg, WalletChallengeTTL); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return msg, nil
}

// VerifyWalletLogin consumes the wallet's challenge and checks the signature
// over it. The challenge is spent even when the signature is wrong.
func (s *AuthService) VerifyWalletLogin(ctx context.Context, wallet common.Address, signature []byte) error {
	msg, err := s.nonces.Take(ctx, wallet.Hex())
	if err != nil {
		return err
	}
	return VerifyWalletSignature(wallet, []byte(msg), signature)
}

func challengeMessage(wallet common.Address, nonce string, issued time.Time) string {
	return fmt.Sprintf("Sign in to LearnFrame\n\nWallet: %s\nNonce: %s\nIssued At: %s",
		wallet.Hex(), nonce, issued.UTC().Format(time.RFC3339))
}

// VerifyWalletSignature checks a personal_sign signature (EIP-191) over
// message. Recovery ids 0/1 and 27/28 are both accepted.
func VerifyWalletSignature(wallet common.Address, message, signature []byte) error {
	if len(signature) != crypto.SignatureLength {
		return ErrInvalidSignature
	}
	sig := bytes.Clone(signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return ErrInvalidSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if common.PubkeyToAddress(*pub) != wallet {
		return ErrInvalidSignature
	}
	return nil
}
