package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/1ureka/raet/internal/crypto"
)

// keyFile is the keygen output. Its road section is a valid config
// fragment; the public section is what peers list under peers.
type keyFile struct {
	Road struct {
		SigKey string `yaml:"sigkey"`
		PriKey string `yaml:"prikey"`
	} `yaml:"road"`
	Public struct {
		Verhex string `yaml:"verhex"`
		Pubhex string `yaml:"pubhex"`
	} `yaml:"public"`
}

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing and an encryption key pair as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if keygenOut != "" {
			f, err := os.OpenFile(keygenOut, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return writeKeys(w)
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "write to this new file instead of stdout")
	rootCmd.AddCommand(keygenCmd)
}

func writeKeys(w io.Writer) error {
	signer, err := crypto.NewSigner(nil)
	if err != nil {
		return err
	}
	priv, err := crypto.NewPrivateer(nil)
	if err != nil {
		return err
	}

	var kf keyFile
	kf.Road.SigKey = signer.KeyHex()
	kf.Road.PriKey = priv.KeyHex()
	kf.Public.Verhex = signer.VerHex()
	kf.Public.Pubhex = priv.PubHex()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(kf); err != nil {
		return err
	}
	return enc.Close()
}
