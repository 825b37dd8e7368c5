package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"anchorledger/core/anchor"
	"anchorledger/crypto"
	"anchorledger/services/anchord/client"
)

func runAnchor(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	keystorePath := fs.String("keystore", "", "Signer keystore (default: profile Keystore)")
	action := fs.String("action", "", "Action type: ADD_ASSET, UPDATE_PORTFOLIO, DELETE_ASSET or REBALANCE")
	hashFlag := fs.String("hash", "", "Precomputed 0x-prefixed 32 byte data hash")
	file := fs.String("file", "", "Hash this document instead of passing -hash")
	algo := fs.String("algo", "keccak", "Digest algorithm used with -file")
	ttl := fs.Duration("ttl", 10*time.Minute, "Signature validity window")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	actionType, err := anchor.ParseActionType(*action)
	if err != nil {
		return err
	}
	var dataHash common.Hash
	switch {
	case *hashFlag != "" && *file != "":
		return errors.New("use either -hash or -file")
	case *hashFlag != "":
		if dataHash, err = parseHashFlag(*hashFlag); err != nil {
			return err
		}
	case *file != "":
		doc, err := readDocument(*file, "")
		if err != nil {
			return err
		}
		if dataHash, err = hashDocument(*algo, doc); err != nil {
			return err
		}
	default:
		return errors.New("-hash or -file required")
	}
	if *ttl <= 0 {
		return errors.New("-ttl must be positive")
	}
	key, _, err := a.loadKey(*keystorePath)
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	deadline := uint64(time.Now().Add(*ttl).Unix())
	req, err := c.SignAnchor(ctx, key.PrivateKey, actionType, dataHash, deadline)
	if err != nil {
		return err
	}
	resp, err := c.Anchor(ctx, req)
	if err != nil {
		return err
	}
	return a.printJSON(resp)
}

func runVerify(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	userFlag := fs.String("user", "", "User address (hex or bech32)")
	hashFlag := fs.String("hash", "", "0x-prefixed data hash")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	user, err := parseUserFlag(*userFlag)
	if err != nil {
		return err
	}
	dataHash, err := parseHashFlag(*hashFlag)
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	resp, err := c.Verify(ctx, user, dataHash)
	if err != nil {
		return err
	}
	return a.printJSON(resp)
}

func runStatus(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	userFlag := fs.String("user", "", "User address (hex or bech32); omit for the ledger status")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*userFlag) == "" {
		resp, err := c.Status(ctx)
		if err != nil {
			return err
		}
		return a.printJSON(resp)
	}
	user, err := parseUserFlag(*userFlag)
	if err != nil {
		return err
	}
	resp, err := c.UserStatus(ctx, user)
	if err != nil {
		return err
	}
	return a.printJSON(resp)
}

func runHistory(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	userFlag := fs.String("user", "", "User address (hex or bech32)")
	offset := fs.Uint64("offset", 0, "Index of the first anchor")
	limit := fs.Uint64("limit", anchor.MaxHistoryPage, "Page size (max 100)")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	user, err := parseUserFlag(*userFlag)
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	resp, err := c.History(ctx, user, *offset, *limit)
	if err != nil {
		return err
	}
	return a.printJSON(resp)
}

func runDomain(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := a.parse(fs, args); err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	resp, err := c.Domain(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(resp)
}

func runEvents(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	userFlag := fs.String("user", "", "Only events for this user")
	since := fs.Uint64("since", 0, "Only events anchored at or after this unix time")
	limit := fs.Uint64("limit", 0, "Maximum number of events")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	query := client.EventsQuery{Since: *since, Limit: *limit}
	if strings.TrimSpace(*userFlag) != "" {
		user, err := parseUserFlag(*userFlag)
		if err != nil {
			return err
		}
		query.User = &user
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	resp, err := c.Events(ctx, query)
	if err != nil {
		return err
	}
	return a.printJSON(resp)
}

func parseUserFlag(raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, errors.New("-user required")
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, err
	}
	return addr.Address, nil
}

func parseHashFlag(raw string) (common.Hash, error) {
	decoded, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(decoded) != common.HashLength {
		return common.Hash{}, fmt.Errorf("hash must be 32 bytes of 0x-prefixed hex")
	}
	return common.BytesToHash(decoded), nil
}
