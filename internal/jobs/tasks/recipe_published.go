package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
)

const TypeRecipePublished = "recipe:published"

var (
	tracer        = otel.Tracer("go-echo-foodgram-worker")
	meter         = otel.Meter("go-echo-foodgram-worker")
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	jobsDuration  metric.Float64Histogram
	notified      metric.Int64Counter
)

func init() {
	var err error

	jobsCompleted, err = meter.Int64Counter(
		"jobs.completed",
		metric.WithDescription("Total number of jobs completed successfully"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs completed counter")
	}

	jobsFailed, err = meter.Int64Counter(
		"jobs.failed",
		metric.WithDescription("Total number of jobs failed"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs failed counter")
	}

	jobsDuration, err = meter.Float64Histogram(
		"jobs.duration_ms",
		metric.WithDescription("Job processing duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs duration histogram")
	}

	notified, err = meter.Int64Counter(
		"notifications.sent",
		metric.WithDescription("Subscribers notified about new recipes"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create notifications counter")
	}
}

type RecipePublishedPayload struct {
	RecipeID     uint              `json:"recipe_id"`
	AuthorID     uint              `json:"author_id"`
	RecipeName   string            `json:"recipe_name"`
	TraceContext map[string]string `json:"trace_context"`
}

// NewRecipePublishedTask captures the caller's trace context in the payload
// so the worker span joins the request trace.
func NewRecipePublishedTask(ctx context.Context, recipeID, authorID uint, recipeName string) (*asynq.Task, error) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	payload, err := json.Marshal(RecipePublishedPayload{
		RecipeID:     recipeID,
		AuthorID:     authorID,
		RecipeName:   recipeName,
		TraceContext: carrier,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TypeRecipePublished, payload,
		asynq.TaskID(fmt.Sprintf("%s:%d", TypeRecipePublished, recipeID)),
		asynq.MaxRetry(5),
	), nil
}

type SubscriberLister interface {
	Subscribers(ctx context.Context, authorID uint) ([]models.User, error)
}

type RecipePublishedHandler struct {
	subscribers SubscriberLister
}

func NewRecipePublishedHandler(subscribers SubscriberLister) *RecipePublishedHandler {
	return &RecipePublishedHandler{subscribers: subscribers}
}

// ProcessTask notifies every subscriber of the recipe's author. Delivery is
// a structured log line per subscriber.
func (h *RecipePublishedHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	start := time.Now()

	var payload RecipePublishedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		recordJobMetrics(ctx, false, time.Since(start))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(payload.TraceContext))

	ctx, span := tracer.Start(parentCtx, "job.recipe_published")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("recipe.id", int64(payload.RecipeID)),
		attribute.Int64("author.id", int64(payload.AuthorID)),
		attribute.String("job.type", TypeRecipePublished),
	)

	subscribers, err := h.subscribers.Subscribers(ctx, payload.AuthorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load subscribers")
		recordJobMetrics(ctx, false, time.Since(start))
		return err
	}

	for _, sub := range subscribers {
		logging.Info(ctx).
			Uint("subscriber_id", sub.ID).
			Str("subscriber_email", sub.Email).
			Uint("recipe_id", payload.RecipeID).
			Str("recipe_name", payload.RecipeName).
			Msg("new recipe notification")
	}

	if notified != nil {
		notified.Add(ctx, int64(len(subscribers)))
	}

	span.SetStatus(codes.Ok, "notifications sent")
	span.SetAttributes(attribute.Int("notification.count", len(subscribers)))

	logging.Info(ctx).
		Uint("recipe_id", payload.RecipeID).
		Int("subscribers", len(subscribers)).
		Msg("recipe notification processed")

	recordJobMetrics(ctx, true, time.Since(start))
	return nil
}

func recordJobMetrics(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("job.type", TypeRecipePublished))

	if success {
		if jobsCompleted != nil {
			jobsCompleted.Add(ctx, 1, attrs)
		}
	} else if jobsFailed != nil {
		jobsFailed.Add(ctx, 1, attrs)
	}

	if jobsDuration != nil {
		jobsDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}
