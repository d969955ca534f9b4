package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Inspect and curate persons",
}

var personListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "List persons, optionally filtered by name",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPersonList,
}

var personAssignCmd = &cobra.Command{
	Use:   "assign <face-id> <person-id>",
	Short: "Assign a face to a person",
	Args:  cobra.ExactArgs(2),
	RunE:  runPersonAssign,
}

var personUnassignCmd = &cobra.Command{
	Use:   "unassign <face-id>",
	Short: "Remove a face from its person",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonUnassign,
}

var personMergeCmd = &cobra.Command{
	Use:   "merge <target-id> <source-id>",
	Short: "Move every face of source into target and delete source",
	Args:  cobra.ExactArgs(2),
	RunE:  runPersonMerge,
}

var personSplitCmd = &cobra.Command{
	Use:   "split <face-id>",
	Short: "Move a face into a new person of its own",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonSplit,
}

var personRenameCmd = &cobra.Command{
	Use:   "rename <person-id> <name>",
	Short: "Rename a person",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPersonRename,
}

var personSimilarCmd = &cobra.Command{
	Use:   "similar <person-id>",
	Short: "List persons that may be the same individual",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonSimilar,
}

var personSuggestCmd = &cobra.Command{
	Use:   "suggest <person-id>",
	Short: "List unassigned faces that look like a person",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonSuggest,
}

func init() {
	rootCmd.AddCommand(personCmd)
	personCmd.AddCommand(personListCmd, personAssignCmd, personUnassignCmd, personMergeCmd,
		personSplitCmd, personRenameCmd, personSimilarCmd, personSuggestCmd)

	personListCmd.Flags().Bool("hidden", false, "Include hidden persons")
	personSimilarCmd.Flags().Float64("threshold", -1, "Minimum similarity (negative = default 0.6)")
	personSimilarCmd.Flags().Int("limit", 0, "Maximum matches (0 = default)")
	personSuggestCmd.Flags().Float64("max-distance", 0, "Maximum cosine distance (0 = default)")
	personSuggestCmd.Flags().Int("limit", 0, "Maximum suggestions (0 = default)")
}

func parseFaceID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid face ID %q", s)
	}
	return id, nil
}

func printPerson(p *database.Person) {
	name := p.Name
	if name == "" {
		name = "(unnamed)"
	}
	var flags []string
	if p.Favorite {
		flags = append(flags, "favorite")
	}
	if p.Hidden {
		flags = append(flags, "hidden")
	}
	fmt.Printf("%-36s  %-24s  %5d faces  cover %-6d %s\n", p.ID, name, p.FaceCount, p.CoverFaceID, strings.Join(flags, ","))
}

func runPersonList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var list []database.Person
	if len(args) == 1 {
		list, err = a.manager.FindPersonsByName(ctx, args[0])
	} else {
		list, err = a.manager.ListPersons(ctx)
	}
	if err != nil {
		return err
	}

	showHidden := mustGetBool(cmd, "hidden")
	shown := 0
	for i := range list {
		if list[i].Hidden && !showHidden {
			continue
		}
		printPerson(&list[i])
		shown++
	}
	fmt.Printf("\n%d persons\n", shown)
	return nil
}

func runPersonAssign(cmd *cobra.Command, args []string) error {
	faceID, err := parseFaceID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.manager.AssignFaceToPerson(ctx, faceID, args[1])
	if err != nil {
		return err
	}
	printPerson(p)
	return nil
}

func runPersonUnassign(cmd *cobra.Command, args []string) error {
	faceID, err := parseFaceID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.RemoveFaceFromPerson(ctx, faceID); err != nil {
		return err
	}
	fmt.Printf("Face %d unassigned\n", faceID)
	return nil
}

func runPersonMerge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.manager.MergePersons(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	printPerson(p)
	return nil
}

func runPersonSplit(cmd *cobra.Command, args []string) error {
	faceID, err := parseFaceID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.manager.SplitFaceToNewPerson(ctx, faceID)
	if err != nil {
		return err
	}
	printPerson(p)
	return nil
}

func runPersonRename(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.manager.RenamePerson(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	printPerson(p)
	return nil
}

func runPersonSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	matches, err := a.manager.FindSimilarPersons(ctx, args[0], mustGetFloat64(cmd, "threshold"), mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No similar persons found.")
		return nil
	}
	for i := range matches {
		fmt.Printf("%.3f  ", matches[i].Similarity)
		printPerson(&matches[i].Person)
	}
	return nil
}

func runPersonSuggest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	suggestions, err := a.manager.SuggestFaces(ctx, args[0], mustGetFloat64(cmd, "max-distance"), mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		fmt.Println("No suggestions.")
		return nil
	}
	for _, s := range suggestions {
		fmt.Printf("face %-8d  photo %-20s  distance %.3f\n", s.Face.ID, s.Face.PhotoUID, s.Distance)
	}
	return nil
}
