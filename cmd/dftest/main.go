package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SuttonProgram/BlackMarlinExec/dfilter"
)

var (
	schemaPath  string
	recordsPath string
	disassemble bool
	debug       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dftest [flags] <filter expression>",
	Short: "Compile a display filter expression and optionally run it against records",
	Long: `Compile a display filter expression against a field schema, print the
compiled program, and optionally evaluate it against a list of records.

Without --schema a default schema with common network fields is used.
With --records each record in the YAML file is evaluated and printed
with its match result.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			log.SetLevel(log.DebugLevel)
		}
		expr := strings.Join(args, " ")

		reg, err := loadRegistry()
		if err != nil {
			return err
		}

		filter, err := dfilter.Compile(expr, reg)
		if err != nil {
			log.WithField("filter", expr).Error(err)
			return err
		}
		log.WithFields(log.Fields{
			"filter":       expr,
			"instructions": len(filter.Instructions()),
			"fields":       len(filter.FieldReferences()),
		}).Debug("compiled")

		if disassemble || recordsPath == "" {
			fmt.Print(filter.Disasm())
		}
		if recordsPath == "" {
			return nil
		}

		records, err := dfilter.LoadRecordsFile(recordsPath, reg)
		if err != nil {
			return err
		}
		matched := 0
		for i, rec := range records {
			ok := filter.Run(rec)
			if ok {
				matched++
			}
			fmt.Printf("record %d: %v\n", i, ok)
		}
		fmt.Printf("%d of %d records matched\n", matched, len(records))
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "YAML file mapping field names to types")
	rootCmd.Flags().StringVarP(&recordsPath, "records", "r", "", "YAML file with records to evaluate")
	rootCmd.Flags().BoolVarP(&disassemble, "disassemble", "d", false, "print the compiled program even when evaluating records")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "print debugging messages")
}

func loadRegistry() (*dfilter.StaticRegistry, error) {
	if schemaPath != "" {
		return dfilter.LoadRegistryFile(schemaPath)
	}
	return dfilter.NewStaticRegistry(map[string]dfilter.ValueType{
		"frame.len":          dfilter.TypeUint,
		"frame.time":         dfilter.TypeTime,
		"frame.time_delta":   dfilter.TypeDuration,
		"eth.src":            dfilter.TypeEther,
		"eth.dst":            dfilter.TypeEther,
		"ip.src":             dfilter.TypeIPv4,
		"ip.dst":             dfilter.TypeIPv4,
		"ip.addr":            dfilter.TypeIPv4,
		"ip.proto":           dfilter.TypeUint,
		"ipv6.src":           dfilter.TypeIPv6,
		"ipv6.dst":           dfilter.TypeIPv6,
		"tcp.port":           dfilter.TypeUint,
		"tcp.srcport":        dfilter.TypeUint,
		"tcp.dstport":        dfilter.TypeUint,
		"tcp.flags.syn":      dfilter.TypeBool,
		"tcp.payload":        dfilter.TypeBytes,
		"udp.port":           dfilter.TypeUint,
		"http.host":          dfilter.TypeString,
		"http.request.uri":   dfilter.TypeString,
		"http.response.code": dfilter.TypeUint,
		"dns.qry.name":       dfilter.TypeString,
	}), nil
}
