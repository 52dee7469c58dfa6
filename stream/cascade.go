// Package stream provides the DynamoDB Streams handler that cascades page
// deletions to sub-pages and blocks.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/dynamo"
)

// Cascader is the backend surface the handler drives. *dynamo.Backend
// implements it.
type Cascader interface {
	QueryAllChildren(ctx context.Context, parentRef string) ([]dynamo.ChildRef, error)
	SetTTLByKey(ctx context.Context, table string, key dynamo.PK, ttl int64) error
	SetRelationshipTTL(ctx context.Context, childRef, parentRef string, ttl int64) error
}

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	backend  Cascader
	registry *dynamo.Registry
	logger   *slog.Logger
}

// NewHandler creates a new stream handler. With a registry, entities whose
// type has no registered children are not queried for children.
func NewHandler(backend Cascader, registry *dynamo.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		backend:  backend,
		registry: registry,
		logger:   logger,
	}
}

// HandleCascadeDelete processes DynamoDB stream events to propagate TTL to
// children. It stops at the first failing record so the batch is retried.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// HandleBatch is HandleCascadeDelete for functions with partial batch
// responses enabled: failed records are reported by sequence number and the
// rest of the batch is still processed.
func (h *Handler) HandleBatch(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"sequenceNumber", record.Change.SequenceNumber,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: record.Change.SequenceNumber,
			})
		}
	}
	return resp, nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	// Only process MODIFY events where TTL was added
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
	newTTL := getNumberAttr(record.Change.NewImage, "ttl")
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	entityRef := getStringAttr(record.Change.NewImage, "entity_ref")
	parentRef := getStringAttr(record.Change.NewImage, "parent_ref")
	if entityRef == "" {
		h.logger.Warn("deleted item without entity_ref", "eventID", record.EventID)
		return nil
	}

	h.logger.Info("processing cascade delete",
		"entityRef", entityRef,
		"parentRef", parentRef,
		"ttl", newTTL,
	)

	var errs []error
	children := 0
	if h.mayHaveChildren(entityRef) {
		// Deleted children are included; setting their TTL again is a no-op.
		refs, err := h.backend.QueryAllChildren(ctx, entityRef)
		if err != nil {
			return fmt.Errorf("query children of %s: %w", entityRef, err)
		}
		children = len(refs)

		// Each child's own stream record continues the cascade below it.
		for _, child := range refs {
			if err := h.backend.SetTTLByKey(ctx, child.TableName, child.Key, newTTL); err != nil {
				h.logger.Warn("failed to set TTL on child",
					"child", child.Ref,
					"error", err,
				)
				errs = append(errs, fmt.Errorf("child %s: %w", child.Ref, err))
			}
		}
	}

	if parentRef != "" {
		if err := h.backend.SetRelationshipTTL(ctx, entityRef, parentRef, newTTL); err != nil {
			h.logger.Warn("failed to set relationship TTL",
				"entity", entityRef,
				"parent", parentRef,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("relationship of %s: %w", entityRef, err))
		}
	}

	h.logger.Info("cascade delete completed",
		"entityRef", entityRef,
		"childrenProcessed", children,
		"failures", len(errs),
	)
	return errors.Join(errs...)
}

func (h *Handler) mayHaveChildren(entityRef string) bool {
	if h.registry == nil {
		return true
	}
	return h.registry.HasChildren(entityType(entityRef))
}

// entityType returns the type prefix of an entity reference ("page#x" -> "page").
func entityType(entityRef string) string {
	t, _, _ := strings.Cut(entityRef, "#")
	return t
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// ConvertStreamKey converts a DynamoDB stream key to a dynamo.PK.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) dynamo.PK {
	result := make(dynamo.PK)
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}
