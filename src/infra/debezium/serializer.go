package debezium

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"discoveryservice/src/domain"
)

var errInvalidEnvelope = errors.New("invalid CDC envelope")

// CDCSerializer handles parsing and validation of CDC messages
type CDCSerializer struct {
	IncludeTables []string
}

// IsTableMonitored checks if table should be processed
func (s *CDCSerializer) IsTableMonitored(tableName string) bool {
	// If include list exists, only monitor included tables
	for _, included := range s.IncludeTables {
		// Exact match
		if tableName == included {
			return true
		}
		// Pattern match for partitioned tables (e.g., edges* matches edges_p2025)
		if strings.HasSuffix(included, "*") {
			prefix := strings.TrimSuffix(included, "*")
			if strings.HasPrefix(tableName, prefix) {
				return true
			}
		}
	}
	return false
}

// ParseCDCEvent deserializes Kafka message to CDC event
func (s *CDCSerializer) ParseCDCEvent(messageValue []byte) (*CDCEvent, error) {
	var cdcEvent CDCEvent
	if err := json.Unmarshal(messageValue, &cdcEvent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CDC event: %w", err)
	}

	if err := s.validateCDCEvent(&cdcEvent); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidEnvelope, err)
	}

	return &cdcEvent, nil
}

// validateCDCEvent performs basic validation on CDC event
func (s *CDCSerializer) validateCDCEvent(event *CDCEvent) error {
	if event.Source.Table == "" {
		return fmt.Errorf("missing source table")
	}

	if event.Operation == "" {
		return fmt.Errorf("missing operation")
	}

	if MapCDCOperation(event.Operation) == "" {
		return fmt.Errorf("invalid operation: %s", event.Operation)
	}

	// For delete operations, 'before' should be present
	if event.Operation == "d" && event.Before == nil {
		return fmt.Errorf("missing 'before' data for delete operation")
	}

	// 'u' sem 'before' só acontece em tabelas sem REPLICA IDENTITY FULL; o transformer trata como insert

	// For create/update operations, 'after' should be present
	if (event.Operation == "c" || event.Operation == "u") && event.After == nil {
		return fmt.Errorf("missing 'after' data for operation %s", event.Operation)
	}

	return nil
}

// ShouldProcessEvent checks if CDC event should be processed based on filtering rules
func (s *CDCSerializer) ShouldProcessEvent(event *CDCEvent) bool {
	if !s.IsTableMonitored(event.Source.Table) {
		return false
	}

	// Snapshots ('r') entram como INSERT.
	return true
}

// MapCDCOperation converte o código do Debezium; "" para códigos desconhecidos.
func MapCDCOperation(cdcOp string) string {
	switch cdcOp {
	case "c", "r": // snapshot entra como insert
		return domain.OperationInsert
	case "u":
		return domain.OperationUpdate
	case "d":
		return domain.OperationDelete
	default:
		return ""
	}
}
