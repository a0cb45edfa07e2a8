package jobs

import (
	"context"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"go-echo-foodgram/internal/jobs/tasks"
	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/telemetry"
)

const DefaultQueue = "default"

var (
	tracer       = otel.Tracer(telemetry.ScopeName)
	meter        = otel.Meter(telemetry.ScopeName)
	jobsEnqueued metric.Int64Counter
)

type Client struct {
	client *asynq.Client
}

func NewClient(redisAddr string) (*Client, error) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})

	var err error
	jobsEnqueued, err = meter.Int64Counter(
		"jobs.enqueued",
		metric.WithDescription("Total number of jobs enqueued"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs enqueued counter")
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueRecipePublished(ctx context.Context, recipeID, authorID uint, recipeName string) error {
	ctx, span := tracer.Start(ctx, "job.enqueue.recipe_published")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("recipe.id", int64(recipeID)),
		attribute.Int64("author.id", int64(authorID)),
		attribute.String("job.type", tasks.TypeRecipePublished),
	)

	task, err := tasks.NewRecipePublishedTask(ctx, recipeID, authorID, recipeName)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(DefaultQueue))
	if err != nil {
		span.RecordError(err)
		return err
	}

	if jobsEnqueued != nil {
		jobsEnqueued.Add(ctx, 1, metric.WithAttributes(
			attribute.String("job.type", tasks.TypeRecipePublished),
		))
	}

	span.SetAttributes(
		attribute.String("job.id", info.ID),
		attribute.String("job.queue", info.Queue),
	)

	logging.Info(ctx).
		Str("job_id", info.ID).
		Str("job_type", tasks.TypeRecipePublished).
		Uint("recipe_id", recipeID).
		Msg("job enqueued")

	return nil
}
