package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

func main() {
	sponsor := flag.Bool("sponsor", false, "generate a secp256k1 sponsor key instead of an API key")
	flag.Parse()

	if *sponsor {
		key, err := crypto.GenerateKey()
		if err != nil {
			log.Fatalf("failed to generate sponsor key: %v", err)
		}
		fmt.Println("--- Sponsor Key ---")
		fmt.Printf("private key: %s\n", hexutil.Encode(crypto.FromECDSA(key)))
		fmt.Printf("address:     %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
		return
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatalf("failed to generate secret: %v", err)
	}
	fmt.Println("--- API Key ---")
	fmt.Printf("id:     %s\n", uuid.NewString())
	fmt.Printf("secret: %s\n", base64.StdEncoding.EncodeToString(secret))
}
