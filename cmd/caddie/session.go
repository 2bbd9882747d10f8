package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	GroupID: "trip",
	Short:   "Rounds on the trip schedule",
}

var sessionAddCmd = &cobra.Command{
	Use:   "add <trip>",
	Short: "Add a session (one round) to a trip",
	Long: `Add a session to the trip schedule.

Tee times are plain English, parsed relative to the trip's first day
when that is still ahead:

  caddie session add "Cabot Trip" --name "Round 1" --format fourball --tee "saturday 8am"
  caddie session add "Cabot Trip" --format singles --tee "sunday at 7:30" --course "Cabot Cliffs"

Formats: fourball, foursomes, singles, scramble.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		trip := findTrip(ctx, database, args[0])

		format, _ := cmd.Flags().GetString("format")
		if !model.ValidSessionFormat(model.SessionFormat(format)) {
			fmt.Fprintf(os.Stderr, "Error: unknown format %q (fourball, foursomes, singles, scramble)\n", format)
			os.Exit(1)
		}

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			existing, err := database.ListSessionsByTrip(ctx, trip.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing sessions: %v\n", err)
				os.Exit(1)
			}
			name = fmt.Sprintf("Round %d", len(existing)+1)
		}

		var teeTime *time.Time
		if teeSpec, _ := cmd.Flags().GetString("tee"); teeSpec != "" {
			base := time.Now()
			if start, err := time.Parse(model.DateFormat, trip.StartDate); err == nil && start.After(base) {
				base = start
			}
			w := when.New(nil)
			w.Add(en.All...)
			w.Add(common.All...)
			r, err := w.Parse(teeSpec, base)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing tee time: %v\n", err)
				os.Exit(1)
			}
			if r == nil {
				fmt.Fprintf(os.Stderr, "Error: could not understand tee time %q\n", teeSpec)
				os.Exit(1)
			}
			t := r.Time.UTC()
			teeTime = &t
		}

		var courseID, teeSetID string
		var courseName string
		if courseArg, _ := cmd.Flags().GetString("course"); courseArg != "" {
			course := findCourse(ctx, database, courseArg)
			courseID = course.ID
			courseName = course.Name

			if teesArg, _ := cmd.Flags().GetString("tees"); teesArg != "" {
				teeSets, err := database.ListTeeSetsByCourse(ctx, course.ID)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error listing tee sets: %v\n", err)
					os.Exit(1)
				}
				for _, tee := range teeSets {
					if strings.EqualFold(tee.Name, teesArg) {
						teeSetID = tee.ID
						break
					}
				}
				if teeSetID == "" {
					fmt.Fprintf(os.Stderr, "Error: %s has no %q tees\n", course.Name, teesArg)
					os.Exit(1)
				}
			}
		}

		now := time.Now().UTC()
		session := &model.Session{
			ID: model.NewID(), TripID: trip.ID, Name: name, Format: model.SessionFormat(format),
			TeeTime: teeTime, CourseID: courseID, TeeSetID: teeSetID,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := session.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := database.UpsertSession(ctx, session); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving session: %v\n", err)
			os.Exit(1)
		}
		queueChange(ctx, database, model.EntitySession, session.ID, model.OpCreate, trip.ID)

		fmt.Printf("%s Added %q (%s) to %q\n", ui.RenderPass("✓"), session.Name, session.Format, trip.Name)
		if teeTime != nil {
			fmt.Printf("   Tee time: %s\n", teeTime.Format("Mon Jan 2 3:04 PM"))
		}
		if courseName != "" {
			fmt.Printf("   Course: %s\n", courseName)
		}
		fmt.Printf("   Add matches with: caddie match add %q --session %q --team-a <team> --team-b <team>\n",
			trip.Name, session.Name)
	},
}

func init() {
	sessionAddCmd.Flags().String("name", "", "session name (default \"Round N\")")
	sessionAddCmd.Flags().String("format", string(model.FormatFourball), "match format")
	sessionAddCmd.Flags().String("tee", "", "tee time in plain English (\"saturday 8am\")")
	sessionAddCmd.Flags().String("course", "", "course from the catalog")
	sessionAddCmd.Flags().String("tees", "", "tee set on the course (\"Blue\")")

	sessionCmd.AddCommand(sessionAddCmd)
	rootCmd.AddCommand(sessionCmd)
}
