package entity

import (
	"fmt"
	"os"
	"sort"
	"strings"

	libentity "github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/fetch"
	"github.com/ValentinKolb/tKV/lib/logging"
	"github.com/ValentinKolb/tKV/lib/txn"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [type] [key] [field=value]...",
		Short: "Inserts or updates an entity",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := args[0]
			key := args[1]

			fields, err := parseFields(args[2:])
			if err != nil {
				return err
			}

			e := libentity.Entity{Type: typ, Key: key, Fields: fields}

			err = manager.TransactAndWait(func(c *txn.Context) error {
				exists, err := c.Has(typ, key)
				if err != nil {
					return err
				}
				if exists {
					err = c.Update(e)
				} else {
					err = c.Insert(e)
				}
				if err != nil {
					return err
				}
				return c.Commit()
			})
			if err != nil {
				return checkFatal(err)
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [type] [key]",
		Short: "Reads an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := args[0]
			key := args[1]

			var result libentity.Entity
			var found bool

			err := manager.TransactAndWait(func(c *txn.Context) error {
				e, ok, err := fetch.FindByKey(c, typ, key)
				result, found = e, ok
				return err
			})
			if err != nil {
				return checkFatal(err)
			}

			if !found {
				fmt.Printf("type=%s, key=%s, found=false\n", typ, key)
				return nil
			}
			fmt.Printf("type=%s, key=%s, found=true\n", typ, key)
			printFields(result)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [type] [key]",
		Short: "Deletes an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := args[0]
			key := args[1]

			err := manager.TransactAndWait(func(c *txn.Context) error {
				if err := c.Delete(typ, key); err != nil {
					return err
				}
				return c.Commit()
			})
			if err != nil {
				return checkFatal(err)
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [type] [key]",
		Short: "Checks whether an entity exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := args[0]
			key := args[1]

			var found bool
			err := manager.TransactAndWait(func(c *txn.Context) error {
				ok, err := c.Has(typ, key)
				found = ok
				return err
			})
			if err != nil {
				return checkFatal(err)
			}
			fmt.Printf("type=%s, key=%s, found=%v\n", typ, key, found)
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [type]",
		Short: "Lists all entities of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := args[0]

			var result []libentity.Entity
			err := manager.TransactAndWait(func(c *txn.Context) error {
				entities, err := fetch.FindAll(c, typ)
				result = entities
				return err
			})
			if err != nil {
				return checkFatal(err)
			}

			sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })

			fmt.Printf("type=%s, count=%d\n", typ, len(result))
			for _, e := range result {
				fmt.Printf("- %s\n", e.Key)
				printFields(e)
			}
			return nil
		},
	}
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseFields converts field=value arguments into an entity field map
func parseFields(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, expected field=value", arg)
		}
		fields[name] = value
	}
	return fields, nil
}

// printFields prints an entity's fields sorted by name
func printFields(e libentity.Entity) {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("    %s=%s\n", name, e.Fields[name])
	}
}

// checkFatal escalates usage violations: they are programming errors, not
// user errors, so the process exits instead of printing a usage hint.
func checkFatal(err error) error {
	if txn.IsUsageViolation(err) {
		logging.GetLogger(logging.FacilityCLI).Errorf("fatal: %v", err)
		os.Exit(2)
	}
	return err
}
