package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	namespace                = "STRUDEL/API"
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

// Client wraps CloudWatch client for custom metrics
type Client struct {
	client      *cloudwatch.Client
	enabled     bool
	environment string
}

// NewClient creates a new CloudWatch metrics client
func NewClient(ctx context.Context, environment string) (*Client, error) {
	// Only enable in production
	if environment != "production" {
		log.Printf("📊 CloudWatch Metrics: DISABLED (environment: %s)", environment)
		return &Client{
			enabled:     false,
			environment: environment,
		}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false}, nil
	}

	client := cloudwatch.NewFromConfig(cfg)
	log.Printf("📊 CloudWatch Metrics: ✅ ENABLED (namespace: %s)", namespace)

	return &Client{
		client:      client,
		enabled:     true,
		environment: environment,
	}, nil
}

// RecordAPIRequest records an API request metric
func (m *Client) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cloudwatchTimeoutSeconds*time.Second)
		defer cancel()

		dimensions := []types.Dimension{
			{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
			{Name: aws.String("Environment"), Value: aws.String(m.environment)},
		}

		data := []types.MetricDatum{
			{
				MetricName: aws.String("RequestCount"),
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Dimensions: dimensions,
			},
			{
				MetricName: aws.String("RequestDuration"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       types.StandardUnitMilliseconds,
				Dimensions: dimensions,
			},
		}

		if statusCode >= httpStatusServerError {
			data = append(data, types.MetricDatum{
				MetricName: aws.String("ServerErrorCount"),
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Dimensions: dimensions,
			})
		}

		if _, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: data,
		}); err != nil {
			log.Printf("⚠️  Failed to put CloudWatch metrics: %v", err)
		}
	}()
}

// RecordGeneration records a pattern generation metric
func (m *Client) RecordGeneration(model string, success bool, totalTokens int, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cloudwatchTimeoutSeconds*time.Second)
		defer cancel()

		outcome := "Success"
		if !success {
			outcome = "Failure"
		}

		dimensions := []types.Dimension{
			{Name: aws.String("Model"), Value: aws.String(model)},
			{Name: aws.String("Outcome"), Value: aws.String(outcome)},
			{Name: aws.String("Environment"), Value: aws.String(m.environment)},
		}

		data := []types.MetricDatum{
			{
				MetricName: aws.String("GenerationCount"),
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Dimensions: dimensions,
			},
			{
				MetricName: aws.String("GenerationDuration"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       types.StandardUnitMilliseconds,
				Dimensions: dimensions,
			},
		}

		if totalTokens > 0 {
			data = append(data, types.MetricDatum{
				MetricName: aws.String("TokensUsed"),
				Value:      aws.Float64(float64(totalTokens)),
				Unit:       types.StandardUnitCount,
				Dimensions: dimensions,
			})
		}

		if _, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: data,
		}); err != nil {
			log.Printf("⚠️  Failed to put CloudWatch metrics: %v", err)
		}
	}()
}
