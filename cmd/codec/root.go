package codec

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/dRef/cmd/util"
	"github.com/ValentinKolb/dRef/lib/collection"
	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/refmap"
	"github.com/ValentinKolb/dRef/lib/serial"
	"github.com/spf13/cobra"
)

var (
	codecConfig common.Config
	codec       serial.Codec

	// CodecCommands represents the codec command group
	CodecCommands = &cobra.Command{
		Use:               "codec",
		Short:             "Write, read and inspect serialized collections",
		PersistentPreRunE: setupCodec,
	}
)

func init() {
	CodecCommands.AddCommand(writeCmd)
	CodecCommands.AddCommand(readCmd)
	CodecCommands.AddCommand(inspectCmd)
	CodecCommands.AddCommand(convertCmd)
}

// setupCodec reads the configuration and creates the configured codec
func setupCodec(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	conf, err := util.GetConfig()
	if err != nil {
		return err
	}
	codecConfig = conf

	codec, err = util.GetCodec()
	return err
}

// --------------------------------------------------------------------------
// Builders of string collections
// --------------------------------------------------------------------------

func equivalence(p ref.Policy) ref.Equivalence[string] {
	if p.Identity() {
		return ref.Identities[string]()
	}
	return ref.Strings()
}

func compare(a, b *string) int { return strings.Compare(*a, *b) }

// stringCollections rebuilds collections of strings, the equivalence follows the policy of the form
type stringCollections struct{}

func (stringCollections) Class() string { return serial.Strings().Class() }

func (stringCollections) Build(dec *serial.Decoder, f *serial.Form) (any, serial.Source, error) {
	return serial.CollectionBuilder[string]{
		Codec:       serial.Strings(),
		Equivalence: equivalence(f.Policy),
		Compare:     compare,
		Options:     []collection.Option{collection.WithConfig(codecConfig)},
	}.Build(dec, f)
}

// stringMaps rebuilds maps from strings to strings
type stringMaps struct{}

func (stringMaps) Class() string {
	return serial.MapBuilder[string, string]{Keys: serial.Strings(), Values: serial.Strings()}.Class()
}

func (stringMaps) Build(dec *serial.Decoder, f *serial.Form) (any, serial.Source, error) {
	return serial.MapBuilder[string, string]{
		Keys:             serial.Strings(),
		Values:           serial.Strings(),
		KeyEquivalence:   equivalence(f.Policy),
		ValueEquivalence: equivalence(f.ValuePolicy),
		Compare:          compare,
		Options:          []refmap.Option{refmap.WithConfig(codecConfig)},
	}.Build(dec, f)
}

// readGraph decodes the file at path with the configured codec
func readGraph(path string) (*serial.Decoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	dec, err := serial.Unmarshal(codec, data, stringCollections{}, stringMaps{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	util.Logger.Debugf("decoded %d nodes from %s (%d bytes)", dec.Len(), path, len(data))
	return dec, nil
}

// writeData writes data to path, or stdout if path is empty
func writeData(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("%d bytes written to %s (%s)\n", len(data), path, codec.Name())
	return nil
}

// closer is implemented by every collection and map
type closer interface {
	Close() error
}
