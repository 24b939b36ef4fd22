// Package feeds fetches the two external JSON lists the driver needs: the
// token list and the holder list. Both are out of scope for re-design
// (they are treated as opaque external collaborators); this package is
// kept deliberately thin — a single GET and JSON decode each, using the
// standard library, since neither the teacher repo nor the rest of the
// retrieved pack exercises a third-party HTTP client for this kind of
// one-shot list fetch.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tokenslotfinder/pkg/primitives"
)

// TokenMeta is the token-list metadata for a single address.
type TokenMeta struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// FetchTokenList fetches and decodes the token list from the
// TOKEN_LIST_URL environment variable. Keys that are not valid 0x
// addresses are dropped; surviving keys are re-checksummed.
func FetchTokenList(ctx context.Context) (map[common.Address]TokenMeta, error) {
	url := os.Getenv("TOKEN_LIST_URL")
	if url == "" {
		return nil, fmt.Errorf("feeds: TOKEN_LIST_URL not set")
	}

	var raw map[string]TokenMeta
	if err := fetchJSON(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("feeds: fetching token list: %w", err)
	}

	out := make(map[common.Address]TokenMeta, len(raw))
	for key, meta := range raw {
		if !strings.HasPrefix(key, "0x") {
			continue
		}
		addr, ok := primitives.ChecksumAddress(key)
		if !ok {
			continue
		}
		out[addr] = meta
	}
	return out, nil
}

// FetchHolderList fetches and decodes the holder list from the
// TOKEN_HOLDERS_URL environment variable. Holder addresses are
// re-checksummed regardless of their casing on input.
func FetchHolderList(ctx context.Context) (map[common.Address][]common.Address, error) {
	url := os.Getenv("TOKEN_HOLDERS_URL")
	if url == "" {
		return nil, fmt.Errorf("feeds: TOKEN_HOLDERS_URL not set")
	}

	var raw map[string][]string
	if err := fetchJSON(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("feeds: fetching holder list: %w", err)
	}

	out := make(map[common.Address][]common.Address, len(raw))
	for key, holders := range raw {
		token, ok := primitives.ChecksumAddress(key)
		if !ok {
			continue
		}
		checksummed := make([]common.Address, 0, len(holders))
		for _, h := range holders {
			addr, ok := primitives.ChecksumAddress(h)
			if !ok {
				continue
			}
			checksummed = append(checksummed, addr)
		}
		out[token] = checksummed
	}
	return out, nil
}

func fetchJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
