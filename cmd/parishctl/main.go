// Command parishctl queries a running parish API.
//
//	parishctl availability -resource 1 -start "2025-03-10 10:00" -end "2025-03-10 12:00"
//	parishctl statistics [-refresh]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"parish/internal/client"
	"parish/internal/config"
	"parish/internal/models"
	"parish/internal/repository"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "parishctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: parishctl <availability|statistics> [flags]")
	}

	c := client.New(envOr("PARISH_API_URL", "http://localhost:8080"), os.Getenv("PARISH_API_KEY"), os.Getenv("PARISH_API_EXTRA"))
	if addr := os.Getenv("PARISH_REDIS_ADDR"); addr != "" {
		rdb := repository.NewRedisClient(config.RedisConfig{Address: addr})
		defer rdb.Close()
		c.UseRedisCache(rdb, time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "availability":
		return availability(ctx, c, args[1:], out)
	case "statistics":
		return statistics(ctx, c, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func availability(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("availability", flag.ContinueOnError)
	resource := fs.Int64("resource", 0, "resource id")
	startRaw := fs.String("start", "", `window start, "YYYY-MM-DD HH:MM"`)
	endRaw := fs.String("end", "", `window end, "YYYY-MM-DD HH:MM"`)
	tz := fs.String("tz", "Local", "timezone of -start/-end")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return err
	}
	start, err := time.ParseInLocation(models.DateTimeLayout, *startRaw, loc)
	if err != nil {
		return fmt.Errorf("bad -start: %w", err)
	}
	end, err := time.ParseInLocation(models.DateTimeLayout, *endRaw, loc)
	if err != nil {
		return fmt.Errorf("bad -end: %w", err)
	}

	res, err := c.CheckAvailability(ctx, *resource, start, end)
	if err != nil {
		return err
	}
	if res.Available {
		fmt.Fprintf(out, "resource %d is free %s - %s\n", *resource, start.Format(models.DateTimeLayout), end.Format(models.DateTimeLayout))
		return nil
	}
	fmt.Fprintf(out, "resource %d is busy, %d conflicting booking(s):\n", *resource, len(res.Conflicts))
	for _, b := range res.Conflicts {
		fmt.Fprintf(out, "  #%d %s - %s %s (%s)\n", b.ID,
			b.Start.In(loc).Format(models.DateTimeLayout), b.End.In(loc).Format("15:04"), b.MemberName, b.Status)
	}
	return nil
}

func statistics(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("statistics", flag.ContinueOnError)
	refresh := fs.Bool("refresh", false, "recompute instead of reading the cache")
	asJSON := fs.Bool("json", false, "print raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := c.Statistics(ctx, *refresh)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(out, "Programmes:      %d (active %d, completed %d)\n", st.TotalProgrammes, st.ActiveProgrammes, st.CompletedProgrammes)
	fmt.Fprintf(out, "Participants:    %d\n", st.TotalParticipants)
	fmt.Fprintf(out, "Attendance rate: %.1f%%\n", st.AttendanceRate)
	for _, p := range st.ParticipantsTrend {
		fmt.Fprintf(out, "  %-9s %d\n", p.Label, p.Count)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
