package main

import (
	"context"
	"flag"
	"log"
	"os"

	"tokenslotfinder/pkg/chain"
	"tokenslotfinder/pkg/driver"
	"tokenslotfinder/pkg/store"
)

func main() {
	var (
		rpcURL     = flag.String("rpc", os.Getenv("RPC_URL_FORK"), "forked node RPC URL")
		abiPath    = flag.String("abi", "abis/erc20.json", "bundled ERC20 ABI path")
		archive    = flag.String("archive", "db/storage_finder_db.json", "archive file path")
		skipSearch = flag.Bool("skip_search", false, "do not fetch token/holder lists; operate on the existing archive")
		forceSim   = flag.Bool("force_sim", false, "re-simulate transferFrom even for tokens already classified as simple")
		deltaOnly  = flag.Bool("delta_only", false, "skip slot-finding for tokens already present in the archive")
	)
	flag.Parse()

	if *rpcURL == "" {
		log.Fatal("slotfinder: -rpc (or RPC_URL_FORK) is required")
	}

	client, err := chain.Dial(*rpcURL)
	if err != nil {
		log.Fatalf("slotfinder: %v", err)
	}

	erc20, err := chain.LoadERC20(client, *abiPath)
	if err != nil {
		log.Fatalf("slotfinder: %v", err)
	}

	a, err := store.Load(*archive)
	if err != nil {
		log.Fatalf("slotfinder: %v", err)
	}

	d := driver.New(client, erc20, a, *archive, driver.Options{
		SkipSearch: *skipSearch,
		ForceSim:   *forceSim,
		DeltaOnly:  *deltaOnly,
	})

	if err := d.Run(context.Background()); err != nil {
		log.Fatalf("slotfinder: %v", err)
	}
}
