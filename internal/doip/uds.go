package doip

import (
	"encoding/binary"
	"fmt"
)

// ReadDataByIdentifier runs UDS 0x22 and returns the data record.
func (c *Client) ReadDataByIdentifier(did uint16) ([]byte, error) {
	req := binary.BigEndian.AppendUint16(nil, did)
	resp, err := c.Diagnostic(SIDReadDataByIdentifier, req)
	if err != nil {
		return nil, err
	}
	if len(resp) < 3 {
		return nil, fmt.Errorf("doip: short ReadDataByIdentifier response")
	}
	return resp[3:], nil
}

// WriteDataByIdentifier runs UDS 0x2E.
func (c *Client) WriteDataByIdentifier(did uint16, data []byte) error {
	req := binary.BigEndian.AppendUint16(nil, did)
	req = append(req, data...)
	_, err := c.Diagnostic(SIDWriteDataByIdentifier, req)
	return err
}

// RoutineControl runs UDS 0x31 and returns the routine status record
// (the bytes after SID, sub-function and routine id).
func (c *Client) RoutineControl(sub byte, rid uint16, data []byte) ([]byte, error) {
	req := make([]byte, 0, 3+len(data))
	req = append(req, sub)
	req = binary.BigEndian.AppendUint16(req, rid)
	req = append(req, data...)

	resp, err := c.Diagnostic(SIDRoutineControl, req)
	if err != nil {
		return nil, err
	}
	if len(resp) < 4 {
		return nil, fmt.Errorf("doip: short RoutineControl response")
	}
	return resp[4:], nil
}

// StartRoutine starts routine rid and checks that the ZGW reports the
// routine as accepted (status byte 0x00).
func (c *Client) StartRoutine(rid uint16, data []byte) error {
	status, err := c.RoutineControl(RoutineControlStart, rid, data)
	if err != nil {
		return err
	}
	if len(status) > 0 && status[0] != 0x00 {
		return fmt.Errorf("doip: routine 0x%04X rejected: status 0x%02X", rid, status[0])
	}
	return nil
}

// TransferFirmware pushes image to the ZGW with the UDS download
// sequence: RequestDownload, TransferData chunks, RequestTransferExit.
// A failure at any step aborts the whole transfer.
func (c *Client) TransferFirmware(image []byte, onChunk func(sent, total int)) error {
	size := binary.BigEndian.AppendUint32(nil, uint32(len(image)))
	if _, err := c.Diagnostic(SIDRequestDownload, size); err != nil {
		return fmt.Errorf("request download: %w", err)
	}

	// Block sequence counter starts at 1 and wraps modulo 256.
	bsc := byte(1)
	for sent := 0; sent < len(image); {
		end := sent + TransferChunkSize
		if end > len(image) {
			end = len(image)
		}

		req := make([]byte, 0, 1+end-sent)
		req = append(req, bsc)
		req = append(req, image[sent:end]...)
		if _, err := c.Diagnostic(SIDTransferData, req); err != nil {
			return fmt.Errorf("transfer data block %d: %w", bsc, err)
		}

		sent = end
		bsc++
		if onChunk != nil {
			onChunk(sent, len(image))
		}
	}

	if _, err := c.Diagnostic(SIDRequestTransferExit, nil); err != nil {
		return fmt.Errorf("transfer exit: %w", err)
	}

	return nil
}
