package dfilter_test

import (
	"fmt"
	"log"

	"github.com/SuttonProgram/BlackMarlinExec/dfilter"
)

func ExampleCompile() {
	reg := dfilter.NewStaticRegistry().
		AddField("http.host", dfilter.TypeString).
		AddField("tcp.port", dfilter.TypeUint)

	filter, err := dfilter.Compile(`http.host contains "example" && tcp.port == 443`, reg)
	if err != nil {
		log.Fatal(err)
	}

	rec := dfilter.NewMapRecord().
		SetString("http.host", "www.example.com").
		SetUint("tcp.port", 443)

	fmt.Println(filter.Run(rec))
	// Output: true
}

func ExampleCompile_occurrences() {
	reg := dfilter.NewStaticRegistry().
		AddField("ip.addr", dfilter.TypeIPv4)

	// A forwarded packet carries both addresses; any occurrence may match.
	filter, err := dfilter.Compile(`ip.addr == 10.0.0.0/8`, reg)
	if err != nil {
		log.Fatal(err)
	}

	rec := dfilter.NewMapRecord().
		SetIP("ip.addr", "192.168.1.10").
		SetIP("ip.addr", "10.1.2.3")

	fmt.Println(filter.Run(rec))
	// Output: true
}

func ExampleCompile_errors() {
	reg := dfilter.NewStaticRegistry().
		AddField("tcp.port", dfilter.TypeUint)

	_, err := dfilter.Compile(`tcp.prot == 80`, reg)
	fmt.Println(err)
	// Output: unknown identifier at column 0: "tcp.prot" is not a known field and cannot be interpreted as integer
}

func ExampleFilter_FieldReferences() {
	reg := dfilter.NewStaticRegistry().
		AddField("tcp.port", dfilter.TypeUint).
		AddField("http.host", dfilter.TypeString)

	filter, err := dfilter.Compile(`tcp.port == 443 && http.host != ""`, reg)
	if err != nil {
		log.Fatal(err)
	}

	for _, ref := range filter.FieldReferences() {
		fmt.Println(ref.Name)
	}
	// Output:
	// tcp.port
	// http.host
}
