package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/course"
	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/store"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var courseCmd = &cobra.Command{
	Use:     "course",
	GroupID: "trip",
	Short:   "The course catalog",
}

var courseImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import TOML course files into the catalog",
	Long: `Import a course file, or every course file in a directory.

Courses are catalog entities: they belong to no trip and survive trip
deletion. Re-importing a changed file updates the course in place. The
sync daemon watches the configured catalog directory and re-imports
changed files on its own; this command is the manual equivalent.

A course file looks like:

  name = "Cliffside Links"
  location = "Inverness, NS"
  pars = [4, 4, 3, 5, 4, 4, 3, 4, 5, 4, 4, 3, 5, 4, 4, 3, 4, 5]

  [[tees]]
  name = "Black"
  rating = 73.2
  slope = 138`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		info, err := os.Stat(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		imp := course.NewImporter(database, nil)
		if info.IsDir() {
			n, err := imp.ImportDir(ctx, args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error importing catalog: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Imported %d courses from %s\n", ui.RenderPass("✓"), n, args[0])
			return
		}

		c, err := imp.ImportFile(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing course: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Imported %q, par %d\n", ui.RenderPass("✓"), c.Name, c.TotalPar())
	},
}

var courseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the course catalog",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		courses, err := database.ListCourses(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing courses: %v\n", err)
			os.Exit(1)
		}
		if len(courses) == 0 {
			fmt.Println("No courses in the catalog. Import one with 'caddie course import <file>'")
			return
		}

		for _, c := range courses {
			line := fmt.Sprintf("%-28s par %d", c.Name, c.TotalPar())
			if c.Location != "" {
				line += "   " + ui.RenderMuted(c.Location)
			}
			fmt.Println(line)

			tees, err := database.ListTeeSetsByCourse(ctx, c.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing tees for %s: %v\n", c.Name, err)
				os.Exit(1)
			}
			for _, t := range tees {
				fmt.Printf("   %-12s %.1f / %d\n", t.Name, t.Rating, t.Slope)
			}
		}
	},
}

// findCourse resolves a course argument: id, name, or catalog slug.
func findCourse(ctx context.Context, database *store.DB, arg string) *model.Course {
	courses, err := database.ListCourses(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing courses: %v\n", err)
		os.Exit(1)
	}
	for _, c := range courses {
		if c.ID == arg || strings.EqualFold(c.Name, arg) || course.Slug(c.Name) == strings.ToLower(arg) {
			return c
		}
	}
	fmt.Fprintf(os.Stderr, "Error: no course %q in the catalog\n", arg)
	fmt.Fprintf(os.Stderr, "Import one with 'caddie course import <file>'\n")
	os.Exit(1)
	return nil
}

func init() {
	courseCmd.AddCommand(courseImportCmd)
	courseCmd.AddCommand(courseListCmd)
	rootCmd.AddCommand(courseCmd)
}
