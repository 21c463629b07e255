// Command generate-schema writes the JSON schema of the dittogrid config file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/dittogrid/pkg/config"
)

// schemaFor reflects the config struct. Property names follow the
// mapstructure tags, which are the keys viper reads.
func schemaFor() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "DittoGrid Configuration"
	schema.Description = "Configuration schema for the DittoGrid chunked file grid"
	schema.Version = "1.0.0"
	return schema
}

func writeSchema(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(schemaFor()); err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	return nil
}

func main() {
	output := flag.String("o", "config.schema.json", "output file (- for stdout)")
	flag.Parse()

	if *output == "-" {
		if err := writeSchema(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema file: %v\n", err)
		os.Exit(1)
	}
	if err := writeSchema(f); err != nil {
		_ = f.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", *output)
}
