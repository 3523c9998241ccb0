package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/olegabu/go-utxo-ledger/ledger"
	"github.com/olegabu/go-utxo-ledger/node"
	"github.com/olegabu/go-utxo-ledger/pubsub"
)

func main() {
	var configFile string
	var signature string
	var waitForFiling bool

	defaultConfig := node.DefaultConfig()
	config := defaultConfig

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// openLedger connects the ledger to kafka when the command publishes,
	// and keeps it local otherwise.
	openLedger := func(withBus bool) (*ledger.Ledger, func(), error) {
		db, err := ledger.NewLeveldbDatabase(config.DbDir)
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot create NewLeveldbDatabase")
		}

		var bus pubsub.Bus
		if withBus {
			bus, err = pubsub.NewKafkaBus(config.Brokers, logger)
			if err != nil {
				db.Close()
				return nil, nil, errors.Wrap(err, "cannot create NewKafkaBus")
			}
		} else {
			bus = pubsub.NewMemoryBus()
		}

		closer := func() {
			if err := bus.Close(); err != nil {
				logger.Error().Err(err).Msg("cannot close bus")
			}
			db.Close()
		}

		return ledger.NewLedger(db, bus, config.Topic, logger), closer, nil
	}

	parseAsset := func(amountArg string, unitArg string) (ledger.Asset, error) {
		amount, err := ledger.ParseAmount(amountArg)
		if err != nil {
			return ledger.Asset{}, errors.Wrap(err, "cannot parse amount")
		}
		return ledger.AssetFromUnit(unitArg, amount), nil
	}

	var policyCmd = &cobra.Command{
		Use:   "policy policy_id [owner_pubkey...]",
		Short: "Registers an asset policy",
		Long:  `Registers the policy governing a unit's supply. Immutable policies forbid burns.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mutable, _ := cmd.Flags().GetBool("mutable")

			led, closer, err := openLedger(false)
			if err != nil {
				return err
			}
			defer closer()

			policyID, err := led.CreatePolicy(args[0], args[1:], !mutable)
			if err != nil {
				return errors.Wrap(err, "cannot CreatePolicy")
			}
			fmt.Printf("created policy %v\n", policyID)
			return nil
		},
	}
	policyCmd.Flags().Bool("mutable", false, "permit burning units under this policy")

	var faucetCmd = &cobra.Command{
		Use:   "faucet owner amount unit",
		Short: "Mints assets into a wallet",
		Long:  `Creates a fresh utxo for the owner with no counterparty debit. Use for testing only.`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := parseAsset(args[1], args[2])
			if err != nil {
				return err
			}

			led, closer, err := openLedger(false)
			if err != nil {
				return err
			}
			defer closer()

			utxo, err := led.AddAssets(args[0], []ledger.Asset{asset})
			if err != nil {
				return errors.Wrap(err, "cannot AddAssets")
			}
			fmt.Printf("added %v %v to %v in utxo %v\n", asset.Amount, asset.Unit(), args[0], utxo.ID)
			return nil
		},
	}

	var balanceCmd = &cobra.Command{
		Use:   "balance owner",
		Short: "Prints the balance of a wallet",
		Long:  `Sums assets across the owner's unspent utxos per unit.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			led, closer, err := openLedger(false)
			if err != nil {
				return err
			}
			defer closer()

			balance, err := led.GetBalance(args[0])
			if err != nil {
				return errors.Wrap(err, "cannot GetBalance")
			}

			units := make([]string, 0, len(balance))
			for unit := range balance {
				units = append(units, unit)
			}
			sort.Strings(units)

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"unit", "amount"})
			table.SetCaption(true, "Balance of "+args[0])
			for _, unit := range units {
				amount := balance[unit]
				table.Append([]string{unit, amount.String()})
			}
			table.Render()
			return nil
		},
	}

	var utxosCmd = &cobra.Command{
		Use:   "utxos owner",
		Short: "Prints the unspent utxos of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			led, closer, err := openLedger(false)
			if err != nil {
				return err
			}
			defer closer()

			utxos, err := led.GetUtxos(args[0])
			if err != nil {
				return errors.Wrap(err, "cannot GetUtxos")
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"id", "assets", "created"})
			table.SetCaption(true, "Utxos of "+args[0])
			for _, utxo := range utxos {
				var assets string
				for _, asset := range utxo.Assets {
					assets += asset.Amount.String() + " " + asset.Unit() + " "
				}
				table.Append([]string{utxo.ID, assets, utxo.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			table.Render()
			return nil
		},
	}

	var sendCmd = &cobra.Command{
		Use:   "send sender recipient amount unit",
		Short: "Submits a transfer for asynchronous execution",
		Long:  `Records a pending transaction, publishes it to the queue and prints its id.`,
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := parseAsset(args[2], args[3])
			if err != nil {
				return err
			}

			led, closer, err := openLedger(true)
			if err != nil {
				return err
			}
			defer closer()

			txID, err := led.AddRequest(args[0], args[1], []ledger.Asset{asset}, signature)
			if err != nil {
				return errors.Wrap(err, "cannot AddRequest")
			}
			fmt.Printf("transaction %v sent to the queue\n", txID)

			if waitForFiling {
				tx, err := led.WaitForTransactions([]string{txID}, 0, 0)
				if err != nil {
					return errors.Wrap(err, "cannot WaitForTransactions")
				}
				fmt.Printf("transaction %v executed, failed=%v reason=%v\n", tx.ID, tx.Failed, tx.Reason)
			}
			return nil
		},
	}

	var burnCmd = &cobra.Command{
		Use:   "burn owner amount unit",
		Short: "Submits a burn for asynchronous execution",
		Long:  `Reduces the issued supply of a unit. The unit's policy must be mutable.`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := parseAsset(args[1], args[2])
			if err != nil {
				return err
			}
			asset.Amount = asset.Amount.Neg()

			led, closer, err := openLedger(true)
			if err != nil {
				return err
			}
			defer closer()

			txID, err := led.AddRequest(args[0], args[0], []ledger.Asset{asset}, signature)
			if err != nil {
				return errors.Wrap(err, "cannot AddRequest")
			}
			fmt.Printf("burn transaction %v sent to the queue\n", txID)
			return nil
		},
	}

	var contractCreateCmd = &cobra.Command{
		Use:   "create owner in_amount in_unit out_amount out_unit",
		Short: "Creates an escrow contract",
		Long:  `Offers out_amount of out_unit in exchange for in_amount of in_unit, locking the offer into escrow.`,
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseAsset(args[1], args[2])
			if err != nil {
				return err
			}
			output, err := parseAsset(args[3], args[4])
			if err != nil {
				return err
			}

			led, closer, err := openLedger(false)
			if err != nil {
				return err
			}
			defer closer()

			contractID, err := led.CreateContract(args[0], ledger.ContractTerms{
				Inputs:  []ledger.Asset{input},
				Outputs: []ledger.Asset{output},
			}, signature)
			if err != nil {
				return errors.Wrap(err, "cannot CreateContract")
			}
			fmt.Printf("created contract %v\n", contractID)
			return nil
		},
	}

	var contractBuyCmd = &cobra.Command{
		Use:   "buy buyer contract_id",
		Short: "Executes a contract as a buyer",
		Long:  `Pays the contract's asking inputs and receives the escrowed outputs.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			led, closer, err := openLedger(true)
			if err != nil {
				return err
			}
			defer closer()

			txID, err := led.AddContractRequest(args[0], args[1], signature)
			if err != nil {
				return errors.Wrap(err, "cannot AddContractRequest")
			}
			fmt.Printf("contract transaction %v sent to the queue\n", txID)
			return nil
		},
	}

	var contractCancelCmd = &cobra.Command{
		Use:   "cancel owner contract_id",
		Short: "Cancels a contract, reclaiming the escrowed outputs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			led, closer, err := openLedger(true)
			if err != nil {
				return err
			}
			defer closer()

			txID, err := led.AddContractRequest(args[0], args[1], signature)
			if err != nil {
				return errors.Wrap(err, "cannot AddContractRequest")
			}
			fmt.Printf("cancel transaction %v sent to the queue\n", txID)
			return nil
		},
	}

	var contractCmd = &cobra.Command{
		Use:   "contract",
		Short: "Creates, executes and cancels escrow contracts",
	}
	contractCmd.AddCommand(contractCreateCmd, contractBuyCmd, contractCancelCmd)

	var waitCmd = &cobra.Command{
		Use:   "wait transaction_id...",
		Short: "Waits until the listed transactions are filed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			led, closer, err := openLedger(false)
			if err != nil {
				return err
			}
			defer closer()

			tx, err := led.WaitForTransactions(args, 0, 0)
			if err != nil {
				return errors.Wrap(err, "cannot WaitForTransactions")
			}
			fmt.Printf("all transactions executed, last %v failed=%v reason=%v\n", tx.ID, tx.Failed, tx.Reason)
			return nil
		},
	}

	var listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Runs the ledger consumer",
		Long:  `Consumes transaction messages from the queue and executes them against the ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := node.Start(context.Background(), config, logger)
			if err != nil {
				return errors.Wrap(err, "cannot node.Start")
			}
			return nil
		},
	}

	var rootCmd = &cobra.Command{
		Use:          "uxl",
		Short:        "Utxo based multi asset ledger",
		Long:         `Utxo based asset ledger with escrow contracts and asynchronous settlement over a message queue.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			loaded, err := node.ReadConfig(configFile)
			if err != nil {
				return errors.Wrap(err, "cannot read config")
			}
			// explicit flags win over the config file
			if !cmd.Flags().Changed("db") {
				config.DbDir = loaded.DbDir
			}
			if !cmd.Flags().Changed("brokers") {
				config.Brokers = loaded.Brokers
			}
			if !cmd.Flags().Changed("topic") {
				config.Topic = loaded.Topic
			}
			config.Group = loaded.Group
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&config.DbDir, "db", defaultConfig.DbDir, "path to the ledger db")
	rootCmd.PersistentFlags().StringSliceVar(&config.Brokers, "brokers", defaultConfig.Brokers, "kafka brokers")
	rootCmd.PersistentFlags().StringVar(&config.Topic, "topic", defaultConfig.Topic, "transactions topic")
	rootCmd.PersistentFlags().StringVar(&signature, "signature", "unsigned", "request signature, verified by the gateway")
	rootCmd.PersistentFlags().BoolVar(&waitForFiling, "wait", false, "wait until the transaction is filed")

	rootCmd.AddCommand(policyCmd, faucetCmd, balanceCmd, utxosCmd, sendCmd, burnCmd, contractCmd, waitCmd, listenCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
