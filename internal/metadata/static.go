// Package metadata implements per-address enrichment: it reconciles up to
// five metadata sources with an explicit trust ordering, from the bundled
// CSV tables up through explorer and on-chain lookups.
package metadata

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// StaticEntry is one bundled, curated record: a deployment-config row or a
// hardcoded map row. Distinguished by source only — the shape is identical.
type StaticEntry struct {
	ContractName string
	TokenSymbol  string
	TokenName    string
	Decimals     *int
	Labels       []string
	Market       string // market/Comet this address belongs to, if any
}

// StaticProvider is the bundled metadata source: a deployment-config table
// (addresses known from protocol deployment artifacts) and a curated
// hardcoded map (addresses the decoder's authors have manually annotated).
// Both load from CSV files tried against a few candidate roots so the
// binary works whether run from the repo root or cmd/.
type StaticProvider struct {
	deployConfig map[string]StaticEntry // "chainId:address" -> entry
	curated      map[string]StaticEntry
	log          zerolog.Logger
}

// NewStaticProvider loads data/deployments.csv and data/curated_addresses.csv
// if present; a missing file is not an error.
func NewStaticProvider(log zerolog.Logger) *StaticProvider {
	p := &StaticProvider{
		deployConfig: make(map[string]StaticEntry),
		curated:      make(map[string]StaticEntry),
		log:          log,
	}
	p.load("data/deployments.csv", p.deployConfig)
	p.load("data/curated_addresses.csv", p.curated)
	return p
}

// key normalizes a (chainId, address) pair for map lookups.
func key(chainID int64, address string) string {
	return strconv.FormatInt(chainID, 10) + ":" + strings.ToLower(address)
}

// candidateRoots locates bundled data files regardless of the process's
// working directory.
var candidateRoots = []string{".", "..", "../..", "data"}

func (p *StaticProvider) load(relPath string, into map[string]StaticEntry) {
	for _, root := range candidateRoots {
		path := root + "/" + relPath
		if root == "data" {
			path = relPath
		}
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		defer file.Close()

		records, err := csv.NewReader(file).ReadAll()
		if err != nil {
			p.log.Warn().Err(err).Str("path", path).Msg("metadata: reading static CSV")
			return
		}

		// Expected header: chainId,address,contractName,tokenSymbol,tokenName,decimals,labels,market
		for i, rec := range records {
			if i == 0 || len(rec) < 2 {
				continue
			}
			chainID, err := strconv.ParseInt(rec[0], 10, 64)
			if err != nil {
				continue
			}
			entry := StaticEntry{}
			if len(rec) > 2 {
				entry.ContractName = rec[2]
			}
			if len(rec) > 3 {
				entry.TokenSymbol = rec[3]
			}
			if len(rec) > 4 {
				entry.TokenName = rec[4]
			}
			if len(rec) > 5 && rec[5] != "" {
				if d, err := strconv.Atoi(rec[5]); err == nil {
					entry.Decimals = &d
				}
			}
			if len(rec) > 6 && rec[6] != "" {
				entry.Labels = strings.Split(rec[6], "|")
			}
			if len(rec) > 7 {
				entry.Market = rec[7]
			}
			into[key(chainID, rec[1])] = entry
		}
		return
	}
}

// Lookup returns the deployment-config entry for (chainID, address), if any.
func (p *StaticProvider) Lookup(chainID int64, address string) (StaticEntry, bool) {
	e, ok := p.deployConfig[key(chainID, address)]
	return e, ok
}

// LookupCurated returns the curated-hardcoded-map entry, if any.
func (p *StaticProvider) LookupCurated(chainID int64, address string) (StaticEntry, bool) {
	e, ok := p.curated[key(chainID, address)]
	return e, ok
}

// Exists reports whether address appears anywhere in the static deployment
// index for chainID (deployment config or curated map), satisfying
// handlers.StaticIndex for the address-verification handler.
func (p *StaticProvider) Exists(chainID int64, address string) bool {
	k := key(chainID, address)
	if _, ok := p.deployConfig[k]; ok {
		return true
	}
	_, ok := p.curated[k]
	return ok
}
