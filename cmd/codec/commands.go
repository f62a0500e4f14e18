package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dRef/cmd/util"
	"github.com/ValentinKolb/dRef/lib/collection"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/refmap"
	"github.com/ValentinKolb/dRef/lib/serial"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	writeCmd = &cobra.Command{
		Use:   "write [elements...]",
		Short: "Serialize a collection of the given elements",
		Long: `Creates a collection of the given strings and serializes it with the configured codec.
Elements of maps are given as key=value.`,
		RunE: runWrite,
	}

	readCmd = &cobra.Command{
		Use:   "read [file]",
		Short: "Rebuild a serialized collection and print its elements",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect [file]",
		Short: "Print the raw graph of a serialized collection as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	convertCmd = &cobra.Command{
		Use:   "convert [in] [out]",
		Short: "Re-encode a serialized collection with another codec without rebuilding it",
		Args:  cobra.ExactArgs(2),
		RunE:  runConvert,
	}
)

func init() {
	key := "kind"
	writeCmd.Flags().String(key, "set", util.WrapString("Kind of the collection (set, sorted-set, queue, deque, list, map, sorted-map)"))
	key = "policy"
	writeCmd.Flags().String(key, "strong", util.WrapString("Reference policy of the elements (or keys)"))
	key = "value-policy"
	writeCmd.Flags().String(key, "strong", util.WrapString("Reference policy of the values of maps"))
	key = "capacity"
	writeCmd.Flags().Int(key, 0, util.WrapString("Capacity of queues and lists, 0 means unbounded"))
	key = "out"
	writeCmd.Flags().String(key, "", util.WrapString("File to write to, stdout if empty"))

	key = "to"
	convertCmd.Flags().String(key, "json", util.WrapString("Codec of the output (json, gob, binary)"))
}

// --------------------------------------------------------------------------
// write
// --------------------------------------------------------------------------

func runWrite(_ *cobra.Command, args []string) error {
	policy, err := util.GetPolicy("policy")
	if err != nil {
		return err
	}

	elements := make([]*string, len(args))
	for i := range args {
		elements[i] = &args[i]
	}

	kind := viper.GetString("kind")
	src, c, err := newSource(kind, policy, elements)
	if err != nil {
		return err
	}
	defer c.Close()

	data, err := serial.Marshal(codec, src)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return writeData(viper.GetString("out"), data)
}

// newSource creates the collection of the given kind and returns its serial source
func newSource(kind string, policy ref.Policy, elements []*string) (serial.Source, closer, error) {
	eq := equivalence(policy)
	opts := []collection.Option{collection.WithConfig(codecConfig), collection.WithCapacity(viper.GetInt("capacity"))}

	switch kind {
	case "set":
		s, err := collection.NewSet(policy, eq, opts...)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range elements {
			s.Add(e)
		}
		return serial.FromCollection[string](s, serial.Strings()), s, nil
	case "sorted-set":
		s, err := collection.NewSortedSet(policy, eq, compare, opts...)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range elements {
			s.Add(e)
		}
		return serial.FromCollection[string](s, serial.Strings()), s, nil
	case "queue":
		q, err := collection.NewQueue(policy, eq, opts...)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range elements {
			if err := q.Add(e); err != nil {
				_ = q.Close()
				return nil, nil, err
			}
		}
		return serial.FromCollection[string](q, serial.Strings()), q, nil
	case "deque":
		d, err := collection.NewDeque(policy, eq, opts...)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range elements {
			if err := d.AddLast(e); err != nil {
				_ = d.Close()
				return nil, nil, err
			}
		}
		return serial.FromCollection[string](d, serial.Strings()), d, nil
	case "list":
		l, err := collection.NewList(policy, eq, opts...)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range elements {
			if err := l.Append(e); err != nil {
				_ = l.Close()
				return nil, nil, err
			}
		}
		return serial.FromCollection[string](l, serial.Strings()), l, nil
	case "map", "sorted-map":
		return newMapSource(kind, policy, elements)
	default:
		return nil, nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func newMapSource(kind string, policy ref.Policy, elements []*string) (serial.Source, closer, error) {
	valuePolicy, err := util.GetPolicy("value-policy")
	if err != nil {
		return nil, nil, err
	}

	type mapping interface {
		serial.Associative[string, string]
		Put(k, v *string) (*string, bool)
		Close() error
	}
	var m mapping
	if kind == "map" {
		m, err = refmap.New(policy, equivalence(policy), valuePolicy, equivalence(valuePolicy), refmap.WithConfig(codecConfig))
	} else {
		m, err = refmap.NewSorted(policy, equivalence(policy), compare, valuePolicy, equivalence(valuePolicy), refmap.WithConfig(codecConfig))
	}
	if err != nil {
		return nil, nil, err
	}

	for _, e := range elements {
		k, v, ok := strings.Cut(*e, "=")
		if !ok {
			_ = m.Close()
			return nil, nil, fmt.Errorf("invalid entry %q (expected key=value)", *e)
		}
		m.Put(&k, &v)
	}
	return serial.FromMap[string, string](m, serial.Strings(), serial.Strings()), m, nil
}

// --------------------------------------------------------------------------
// read, inspect, convert
// --------------------------------------------------------------------------

func runRead(_ *cobra.Command, args []string) error {
	dec, err := readGraph(args[0])
	if err != nil {
		return err
	}

	root := dec.Root()
	built, err := root.Resolve()
	if err != nil {
		return fmt.Errorf("failed to rebuild %s: %w", root.Form().Kind, err)
	}
	if c, ok := built.(closer); ok {
		defer c.Close()
	}

	f := root.Form()
	fmt.Printf("%s (%s), %d stored elements\n", f.Kind, f.Policy, len(f.Keys))
	switch c := built.(type) {
	case serial.Associative[string, string]:
		for k, v := range c.All() {
			fmt.Printf("  %s = %s\n", *k, *v)
		}
	case serial.Container[string]:
		for _, v := range c.Slice() {
			fmt.Printf("  %s\n", *v)
		}
	}
	return nil
}

func runInspect(_ *cobra.Command, args []string) error {
	dec, err := readGraph(args[0])
	if err != nil {
		return err
	}

	nodes := make([]*serial.Form, dec.Len())
	for i := range nodes {
		d, err := dec.Deferred(uint32(i))
		if err != nil {
			return err
		}
		nodes[i] = d.Form()
	}

	out, err := json.MarshalIndent(struct {
		Root  *serial.Form   `json:"root"`
		Nodes []*serial.Form `json:"nodes"`
	}{dec.Root().Form(), nodes}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runConvert(_ *cobra.Command, args []string) error {
	to, err := serial.CodecByName(viper.GetString("to"))
	if err != nil {
		return err
	}

	dec, err := readGraph(args[0])
	if err != nil {
		return err
	}

	// the root is written from its raw form, nothing is rebuilt
	data, err := serial.Marshal(to, dec.Root())
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	codec = to
	return writeData(args[1], data)
}
