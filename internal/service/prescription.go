package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

// LookupPrescription returns the tenant's record for the patient and
// prescription number, creating a VERIFIED one on first sight. The bool
// reports whether a record was created.
func (s *Service) LookupPrescription(ctx context.Context, pharmacyID string, userID string, req domain.PrescriptionLookupRequest) (domain.Prescription, bool, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.Prescription{}, false, err
	}
	patientTC := strings.TrimSpace(req.PatientTC)
	prescriptionNo := strings.TrimSpace(req.PrescriptionNo)
	if patientTC == "" || prescriptionNo == "" {
		return domain.Prescription{}, false, domain.Errorf(domain.KindInvalidInput, "patient_tc and prescription_no are required")
	}

	var (
		found   domain.Prescription
		created bool
	)
	err := s.atomic(ctx, "lookup_prescription", func(ctx context.Context) error {
		var err error
		found, created, err = s.repo.FindOrCreatePrescription(ctx, domain.Prescription{
			ID:             xid.New("rx"),
			PharmacyID:     pharmacyID,
			PatientTC:      patientTC,
			PrescriptionNo: prescriptionNo,
			Status:         domain.PrescriptionVerified,
			CreatedByID:    userID,
			CreatedAt:      s.clock.Now(),
		})
		return err
	})
	if err != nil {
		return domain.Prescription{}, false, err
	}

	if created {
		s.logger.Info("prescription registered",
			zap.String("pharmacy_id", pharmacyID),
			zap.String("prescription_id", found.ID),
			zap.String("user_id", userID),
		)
	}
	return found, created, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, pharmacyID string) (domain.PrescriptionListResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.PrescriptionListResponse{}, err
	}
	items, err := s.repo.ListPrescriptions(ctx, pharmacyID)
	if err != nil {
		return domain.PrescriptionListResponse{}, err
	}
	return domain.PrescriptionListResponse{Items: items}, nil
}
