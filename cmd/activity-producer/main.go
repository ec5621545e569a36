package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/pyquest-jobs/internal/domain"
)

var lessonIDs = []string{
	"variables", "strings", "lists", "dicts", "loops", "functions",
	"comprehensions", "classes", "exceptions", "generators", "decorators", "modules",
}

var challengeTypes = []string{"loops", "functions", "strings", "recursion", "algorithms"}

var difficulties = []string{"easy", "medium", "hard"}

// randomEvent builds a lesson or challenge completion for userID
func randomEvent(rng *rand.Rand, userID string, now time.Time) domain.ActivityEvent {
	var (
		activityType string
		payload      any
	)

	if rng.Intn(100) < 70 {
		taken := float64(rng.Intn(600) + 30)
		activityType = domain.ActivityLessonCompleted
		payload = domain.LessonCompletedData{
			LessonID:  lessonIDs[rng.Intn(len(lessonIDs))],
			Score:     float64(60 + rng.Intn(41)),
			XPEarned:  int64(10 + rng.Intn(20)),
			TimeTaken: &taken,
		}
	} else {
		activityType = domain.ActivityChallengeCompleted
		payload = domain.ChallengeCompletedData{
			ChallengeType: challengeTypes[rng.Intn(len(challengeTypes))],
			Difficulty:    difficulties[rng.Intn(len(difficulties))],
			Score:         float64(60 + rng.Intn(41)),
		}
	}

	data, _ := json.Marshal(payload)
	return domain.ActivityEvent{
		EventID:      uuid.NewString(),
		UserID:       userID,
		ActivityType: activityType,
		ActivityData: data,
		OccurredAt:   now,
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "activity-events", "Kafka topic")
	users := flag.String("users", "", "User IDs to emit activity for (comma-separated, must exist in profiles)")
	eventsPerSecond := flag.Int("rate", 20, "Events per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	userIDs := strings.FieldsFunc(*users, func(r rune) bool { return r == ',' || r == ' ' })
	if len(userIDs) == 0 {
		log.Fatal("at least one user ID is required (-users)")
	}
	if *eventsPerSecond <= 0 {
		log.Fatal("-rate must be positive")
	}
	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🐍 Activity Event Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Users:            %d\n", len(userIDs))
	fmt.Printf("  Events/sec:       %d\n", *eventsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer. Keying by user keeps each user's events in order.
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sendEvent := func(event domain.ActivityEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(event.UserID),
			Value: sarama.ByteEncoder(data),
		}
	}

	rng := rand.New(rand.NewSource(*seed))

	ticker := time.NewTicker(time.Second / time.Duration(*eventsPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var eventCount int64
	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case now := <-ticker.C:
			if *duration > 0 && now.After(endTime) {
				shutdown("Duration reached")
				return
			}
			userID := userIDs[rng.Intn(len(userIDs))]
			sendEvent(randomEvent(rng, userID, now.UTC()))
			eventCount++

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				eventCount,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
