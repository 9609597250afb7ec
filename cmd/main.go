package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stakelabs/harvest-server/cmd/cli"
	"github.com/stakelabs/harvest-server/internal/core/config"
	"github.com/stakelabs/harvest-server/pkg/logger"
)

var logMode string

var rootCmd = &cobra.Command{
	Use:   "harvest-server",
	Short: "Harvest reward-accrual ledger server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch logMode {
		case "debug", "pretty", "info", "prod", "test":
			logger.InitWithMode(logger.LogMode(logMode))
		default:
			logger.InitWithMode(logger.LogModePretty)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer()
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the harvest ledger server",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer()
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Store the custody signer private key",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, _ := cmd.Flags().GetString("private-key")
		if err := cli.RunAuth(privateKey); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to store key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Custody key stored")
	},
}

var addPoolCmd = &cobra.Command{
	Use:   "add-pool",
	Short: "Register a new stake pool on a running server",
	Run: func(cmd *cobra.Command, args []string) {
		admin, _ := cmd.Flags().GetString("admin")
		asset, _ := cmd.Flags().GetString("stake-asset")
		weight, _ := cmd.Flags().GetUint64("weight")
		withUpdate, _ := cmd.Flags().GetBool("with-update")

		cfg, err := config.GetConfigManager().GetConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}

		if err := cli.AddPool(cfg, admin, asset, weight, withUpdate); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to add pool: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pool registered for stake asset %s with weight %d\n", asset, weight)
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Fund the reward pool from an approved account",
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetString("from")
		amount, _ := cmd.Flags().GetString("amount")

		cfg, err := config.GetConfigManager().GetConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}

		if err := cli.Fund(cfg, from, amount); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to fund: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Funded %s reward tokens from %s\n", amount, from)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "pretty", "Log mode: debug, pretty, info, prod, test")

	authCmd.Flags().String("private-key", "", "Private key in hex format")
	must(authCmd.MarkFlagRequired("private-key"))

	addPoolCmd.Flags().String("admin", "", "Admin wallet address")
	addPoolCmd.Flags().String("stake-asset", "", "ERC20 address of the stake asset")
	addPoolCmd.Flags().Uint64("weight", 0, "Reward weight of the new pool")
	addPoolCmd.Flags().Bool("with-update", false, "Bring every pool current before adding")
	must(addPoolCmd.MarkFlagRequired("admin"))
	must(addPoolCmd.MarkFlagRequired("stake-asset"))

	fundCmd.Flags().String("from", "", "Funding wallet address (must have approved custody)")
	fundCmd.Flags().String("amount", "", "Amount of reward tokens in base units")
	must(fundCmd.MarkFlagRequired("from"))
	must(fundCmd.MarkFlagRequired("amount"))

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(addPoolCmd)
	rootCmd.AddCommand(fundCmd)
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
