package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact the ledger to reclaim unused disk space",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		return Compact()
	},
}

// Compact compacts the ledger database to reclaim unused space
func Compact() error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	path := s.ledger.Path()
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	sizeBefore := info.Size()

	if err := s.ledger.Compact(); err != nil {
		return err
	}

	info, err = os.Stat(path)
	if err != nil {
		return err
	}
	sizeAfter := info.Size()

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
	return nil
}
