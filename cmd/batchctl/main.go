package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"mealplan/internal/domain"
)

func main() {
	_ = godotenv.Load()

	defaultAddr := strings.TrimSpace(os.Getenv("BATCHCTL_ADDR"))
	if defaultAddr == "" {
		defaultAddr = "http://localhost:8080"
	}

	var (
		addr        string
		count       int
		mode        string
		concurrency int
		images      bool
		store       bool
		validate    bool
		mealType    string
		cuisine     string
		tags        string
		minCal      int
		maxCal      int
		attach      string
		abortID     string
		list        bool
		all         bool
		noTail      bool
	)
	flag.StringVar(&addr, "addr", defaultAddr, "API base URL (BATCHCTL_ADDR)")
	flag.IntVar(&count, "count", 5, "Number of recipes to generate")
	flag.StringVar(&mode, "mode", string(domain.BatchModeBulk), "Batch mode: single, bulk or bmad")
	flag.IntVar(&concurrency, "concurrency", 0, "Worker override (0 uses the server default)")
	flag.BoolVar(&images, "images", false, "Generate a photo for each recipe")
	flag.BoolVar(&store, "store", false, "Store generated photos")
	flag.BoolVar(&validate, "validate", true, "Validate nutrition")
	flag.StringVar(&mealType, "meal", "", "Meal type (breakfast, lunch, dinner, snack)")
	flag.StringVar(&cuisine, "cuisine", "", "Cuisine")
	flag.StringVar(&tags, "tags", "", "Comma separated dietary tags")
	flag.IntVar(&minCal, "min-cal", 0, "Minimum calories per serving")
	flag.IntVar(&maxCal, "max-cal", 0, "Maximum calories per serving")
	flag.StringVar(&attach, "attach", "", "Tail an existing batch instead of starting one")
	flag.StringVar(&abortID, "abort", "", "Abort the given batch")
	flag.BoolVar(&list, "list", false, "List batches")
	flag.BoolVar(&all, "all", false, "Include finished batches when listing")
	flag.BoolVar(&noTail, "no-tail", false, "Start the batch and exit without following it")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newAPIClient(addr, nil)

	switch {
	case list:
		jobs, err := client.list(ctx, all)
		if err != nil {
			fail("list batches: %v", err)
		}
		for _, j := range jobs {
			printJob(os.Stdout, j)
		}
		return
	case abortID != "":
		if err := client.abort(ctx, abortID); err != nil {
			fail("abort %s: %v", abortID, err)
		}
		fmt.Printf("abort requested for %s\n", abortID)
		return
	}

	id := attach
	if id == "" {
		cfg := domain.BatchConfig{
			Count:                 count,
			Mode:                  domain.BatchMode(strings.ToLower(strings.TrimSpace(mode))),
			Concurrency:           concurrency,
			EnableImageGeneration: images,
			EnableStorage:         store,
			EnableValidation:      validate,
			Recipe: domain.RecipeSpec{
				MealType:    mealType,
				Cuisine:     cuisine,
				DietaryTags: splitTags(tags),
				MinCalories: minCal,
				MaxCalories: maxCal,
			},
		}
		var err error
		id, err = client.start(ctx, cfg)
		if err != nil {
			fail("start batch: %v", err)
		}
		fmt.Printf("batch %s queued\n", id)
		if noTail {
			return
		}
	}

	last, err := client.tail(ctx, id, os.Stdout)
	switch {
	case errors.Is(err, errOverflow):
		fmt.Fprintln(os.Stderr, "stream overflowed; fetching final snapshot")
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "detached from %s; the batch keeps running\n", id)
		return
	case err != nil:
		fail("tail %s: %v", id, err)
	}
	if last != nil && !last.Status.IsTerminal() {
		fmt.Fprintln(os.Stderr, "stream ended before the batch finished")
	}

	job, err := client.get(context.Background(), id)
	if err != nil {
		fail("fetch %s: %v", id, err)
	}
	printJob(os.Stdout, job)
	if job.Status != domain.BatchStatusComplete {
		os.Exit(2)
	}
}

func splitTags(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
