package domain

import "errors"

var (
	// ErrInvalidOrganization — организация не найдена, подача отклонена целиком:
	// ничего не персистится и не публикуется.
	ErrInvalidOrganization = errors.New("organization not found or has no policy context")

	// ErrMalformedInteraction — входные данные не прошли валидацию (ошибка вызывающего).
	ErrMalformedInteraction = errors.New("malformed interaction")

	// ErrPersistence — сбой атомарной записи. Ретраябельно: повторная подача
	// с тем же id безопасна (уникальность id в хранилище).
	ErrPersistence = errors.New("persistence failure")

	// ErrDetectorDegraded — детектор не уложился в таймаут или упал.
	// Поглощается движком: вердикт выдается с confidence 0 и флагом деградации,
	// наружу как ошибка подачи НЕ выходит.
	ErrDetectorDegraded = errors.New("hallucination detector degraded")

	// ErrNotFound — запись отсутствует (для read-путей консоли и API).
	ErrNotFound = errors.New("not found")
)
