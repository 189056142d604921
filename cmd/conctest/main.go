// Command conctest fires concurrent seat requests at one event in a real
// PostgreSQL database and checks that the event was never overbooked.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/clock"
	"github.com/Shivanand-hulikatti/cofeast/internal/database"
	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/Shivanand-hulikatti/cofeast/internal/repository"
	"github.com/Shivanand-hulikatti/cofeast/internal/service"
)

func main() {
	capacity := flag.Int("capacity", 5, "event capacity, 0 for unlimited")
	users := flag.Int("users", 50, "number of concurrent participants")
	seats := flag.Int("seats", 1, "seats requested by each participant")
	flag.Parse()

	ctx := context.Background()

	pool, err := database.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	events := repository.NewEventRepository(pool)
	parts := repository.NewParticipationRepository(pool)
	tx := repository.NewTransactor(pool, 10*time.Second)
	clk := clock.NewSystem()
	eventSvc := service.NewEventService(tx, events, parts, nil, clk)
	engine := service.NewReservationEngine(tx, events, parts, nil, clk)

	startsAt := time.Now().Add(time.Hour)
	ev, err := eventSvc.CreateEvent(ctx, model.CreateEventRequest{
		Title:      "Concurrency stress test",
		HostUserID: "conctest-host",
		Capacity:   *capacity,
		StartTime:  startsAt,
		EndTime:    startsAt.Add(2 * time.Hour),
	})
	if err != nil {
		log.Fatalf("CreateEvent: %v", err)
	}

	fmt.Println("═══════════════════════════════════════════")
	fmt.Println("  Cofeast — Concurrency Stress Test")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("Event ID : %s\n", ev.ID)
	fmt.Printf("Capacity : %d\n", ev.Capacity)
	fmt.Printf("Users    : %d x %d seats\n\n", *users, *seats)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		booked   int
		rejected int
		failed   int
	)
	start := time.Now()
	for i := 0; i < *users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := engine.RequestSeats(ctx, ev.ID, model.ParticipateRequest{
				UserID:    fmt.Sprintf("conctest-user-%03d", n),
				SeatCount: *seats,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, service.ErrCapacityExceeded):
				rejected++
			default:
				failed++
				fmt.Printf("  goroutine %03d  ❌  %v\n", n, err)
			}
		}(i)
	}
	wg.Wait()

	fmt.Println("Booked    :", booked)
	fmt.Println("Rejected  :", rejected)
	fmt.Println("Failed    :", failed)
	fmt.Println("Time Taken:", time.Since(start))

	final, err := events.GetByID(ctx, ev.ID)
	if err != nil {
		log.Fatalf("GetByID: %v", err)
	}
	sum, err := parts.SumConfirmed(ctx, ev.ID)
	if err != nil {
		log.Fatalf("SumConfirmed: %v", err)
	}
	rows, err := parts.CountByEvent(ctx, ev.ID)
	if err != nil {
		log.Fatalf("CountByEvent: %v", err)
	}
	fmt.Printf("\nfinal state  →  confirmed_count=%d  sum(seats)=%d  rows=%d  status=%s\n",
		final.ConfirmedCount, sum, rows, final.Status)

	ok := final.ConfirmedCount == sum &&
		sum == booked*(*seats) &&
		rows == booked &&
		(final.Capacity == 0 || final.ConfirmedCount <= final.Capacity)

	for _, q := range []string{
		`DELETE FROM meal_event_participants WHERE meal_event_id = $1`,
		`DELETE FROM meal_events WHERE id = $1`,
	} {
		if _, err := pool.Exec(ctx, q, ev.ID); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}
	if !ok {
		fmt.Println("\n❌  FAIL — counters disagree or the event was overbooked")
		os.Exit(1)
	}
	fmt.Println("\n✅  PASS — no overbooking, counters consistent")
}
